package domain

import "github.com/google/uuid"

// Contact is one entry from the external contact registry. The registry is a
// read-only collaborator; these values are only persisted as a snapshot
// (VerificationParty) when a verification request opens.
type Contact struct {
	ID       uuid.UUID
	FullName string
	Email    string
}

type RoledContact struct {
	Contact
	Role PartyRole
}

// PartySnapshot is the registry's view of a testator at one instant.
type PartySnapshot struct {
	Executors       []Contact
	Beneficiaries   []Contact
	TrustedContacts []Contact
}

// All flattens the snapshot, executors first.
func (s PartySnapshot) All() []RoledContact {
	out := make([]RoledContact, 0, len(s.Executors)+len(s.Beneficiaries)+len(s.TrustedContacts))
	for _, c := range s.Executors {
		out = append(out, RoledContact{Contact: c, Role: RoleExecutor})
	}
	for _, c := range s.Beneficiaries {
		out = append(out, RoledContact{Contact: c, Role: RoleBeneficiary})
	}
	for _, c := range s.TrustedContacts {
		out = append(out, RoledContact{Contact: c, Role: RoleTrustedContact})
	}
	return out
}
