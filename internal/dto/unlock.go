package dto

import "time"

// IdentifyRequest opens an unlock session. The caller claims who they are
// and which testator they are acting for; the core resolves the claim
// against the verification snapshot and never says which field mismatched.
type IdentifyRequest struct {
	FullName      string `json:"fullName"`
	Email         string `json:"email"`
	TestatorEmail string `json:"testatorEmail"`
}

type UnlockSessionResponse struct {
	SessionToken string    `json:"sessionToken"`
	Step         string    `json:"step"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

type SubmitOtpRequest struct {
	SessionToken string `json:"sessionToken"`
	Code         string `json:"code"`
}

type VerifyContactsRequest struct {
	SessionToken string   `json:"sessionToken"`
	Names        []string `json:"names"`
}

type FinalizeRequest struct {
	SessionToken   string `json:"sessionToken"`
	CredentialCode string `json:"credentialCode"`
}

type ReleaseResponse struct {
	RequestID     string          `json:"requestId"`
	SealedContent []byte          `json:"sealedContent"`
	Manifest      ReleaseManifest `json:"manifest"`
	ReleasedAt    time.Time       `json:"releasedAt"`
}

type ReleaseManifest struct {
	TestatorEmail string   `json:"testatorEmail"`
	ReleasedTo    string   `json:"releasedTo"`
	ReleasedRole  string   `json:"releasedRole"`
	PartyNames    []string `json:"partyNames"`
}
