package impl

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"willvault/internal/domain"
	"willvault/internal/dto"
	"willvault/internal/service"
)

// openForUnlock escalates the seeded testator all the way to an open
// verification request and returns the unlock codes captured from the
// dispatched invitations, keyed by recipient email. The clock ends at
// testStart + 15 days.
func openForUnlock(t *testing.T, env *testEnv, testator *domain.Testator) map[string]string {
	t.Helper()
	env.clock.Advance(15 * day)
	sweepAt(t, env, 15*day)
	codes := make(map[string]string)
	for _, inv := range env.notifier.byKind(service.TemplateUnlockInvitation) {
		codes[inv.Recipient] = inv.Payload["unlockCode"]
	}
	if len(codes) != 3 {
		t.Fatalf("captured %d unlock codes, want 3", len(codes))
	}
	return codes
}

func identify(t *testing.T, env *testEnv, fullName, email string) *dto.UnlockSessionResponse {
	t.Helper()
	resp, err := env.unlock.RequestUnlock(context.Background(), dto.IdentifyRequest{
		FullName:      fullName,
		Email:         email,
		TestatorEmail: "olivia@example.com",
	}, "198.51.100.7", "unlock-test")
	if err != nil {
		t.Fatalf("identify %s: %v", email, err)
	}
	return resp
}

func otpFor(t *testing.T, env *testEnv, email string) string {
	t.Helper()
	msg := env.notifier.lastTo(email)
	if msg == nil || msg.Kind != service.TemplateUnlockOtp {
		t.Fatalf("no otp message for %s", email)
	}
	return msg.Payload["otp"]
}

// walkToFinalize runs identify, otp, and contact verification for one party
// and returns the token ready for Finalize.
func walkToFinalize(t *testing.T, env *testEnv, fullName, email string, contactNames []string) string {
	t.Helper()
	ctx := context.Background()
	resp := identify(t, env, fullName, email)
	resp, err := env.unlock.SubmitOtp(ctx, dto.SubmitOtpRequest{SessionToken: resp.SessionToken, Code: otpFor(t, env, email)}, "", "")
	if err != nil {
		t.Fatalf("submit otp: %v", err)
	}
	resp, err = env.unlock.VerifyContacts(ctx, dto.VerifyContactsRequest{SessionToken: resp.SessionToken, Names: contactNames}, "", "")
	if err != nil {
		t.Fatalf("verify contacts: %v", err)
	}
	if resp.Step != "finalize" {
		t.Fatalf("step = %q, want finalize", resp.Step)
	}
	return resp.SessionToken
}

func TestUnlock_FullChain(t *testing.T) {
	env := newTestEnv(t)
	testator := seedTestator(t, env)
	codes := openForUnlock(t, env, testator)
	ctx := context.Background()

	resp := identify(t, env, "Erik Olsen", "erik@example.com")
	if resp.Step != "submit_otp" {
		t.Fatalf("step = %q, want submit_otp", resp.Step)
	}

	// The OTP goes to the snapshot address, not anything caller-supplied.
	otp := otpFor(t, env, "erik@example.com")
	if len(otp) != 6 {
		t.Fatalf("otp = %q, want 6 digits", otp)
	}

	resp, err := env.unlock.SubmitOtp(ctx, dto.SubmitOtpRequest{SessionToken: resp.SessionToken, Code: otp}, "", "")
	if err != nil {
		t.Fatalf("submit otp: %v", err)
	}
	if resp.Step != "verify_contacts" {
		t.Fatalf("step = %q, want verify_contacts", resp.Step)
	}

	// Partial, case-insensitive names of the other two parties.
	resp, err = env.unlock.VerifyContacts(ctx, dto.VerifyContactsRequest{
		SessionToken: resp.SessionToken,
		Names:        []string{"bea", "tara lindqvist"},
	}, "", "")
	if err != nil {
		t.Fatalf("verify contacts: %v", err)
	}

	release, err := env.unlock.Finalize(ctx, dto.FinalizeRequest{
		SessionToken:   resp.SessionToken,
		CredentialCode: codes["erik@example.com"],
	}, "", "")
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !bytes.Equal(release.SealedContent, []byte("sealed-will-bundle")) {
		t.Fatalf("sealed content = %q", release.SealedContent)
	}
	if release.Manifest.ReleasedTo != "Erik Olsen" || release.Manifest.ReleasedRole != string(domain.RoleExecutor) {
		t.Fatalf("manifest = %+v", release.Manifest)
	}
	if len(release.Manifest.PartyNames) != 3 {
		t.Fatalf("manifest party names = %v", release.Manifest.PartyNames)
	}

	vr := env.mem.requestByTestator(testator.ID)
	if vr.Status != domain.RequestCompleted {
		t.Fatalf("request status = %q, want completed", vr.Status)
	}
	frozen, err := env.testators.Get(ctx, testator.ID)
	if err != nil {
		t.Fatalf("get testator: %v", err)
	}
	if !frozen.Frozen {
		t.Fatal("testator not frozen after release")
	}

	actions := env.mem.auditActions(testator.ID)
	var sawRelease bool
	for _, a := range actions {
		if a == domain.AuditWillReleased {
			sawRelease = true
		}
	}
	if !sawRelease {
		t.Fatalf("audit trail missing release, got %v", actions)
	}
}

func TestRequestUnlock_IdentityMismatchIsOpaque(t *testing.T) {
	env := newTestEnv(t)
	testator := seedTestator(t, env)
	openForUnlock(t, env, testator)

	cases := []dto.IdentifyRequest{
		{FullName: "Erik Olsen", Email: "wrong@example.com", TestatorEmail: "olivia@example.com"},
		{FullName: "Somebody Else", Email: "erik@example.com", TestatorEmail: "olivia@example.com"},
		{FullName: "Erik Olsen", Email: "erik@example.com", TestatorEmail: "nobody@example.com"},
	}
	for _, req := range cases {
		_, err := env.unlock.RequestUnlock(context.Background(), req, "", "")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("req %+v: err = %v, want ErrNotFound", req, err)
		}
	}
}

func TestRequestUnlock_ExpiredRequestIsRetired(t *testing.T) {
	env := newTestEnv(t)
	testator := seedTestator(t, env)
	openForUnlock(t, env, testator)

	env.clock.Advance(testReqTTL + time.Hour)
	_, err := env.unlock.RequestUnlock(context.Background(), dto.IdentifyRequest{
		FullName: "Erik Olsen", Email: "erik@example.com", TestatorEmail: "olivia@example.com",
	}, "", "")
	if !errors.Is(err, domain.ErrExpired) {
		t.Fatalf("err = %v, want ErrExpired", err)
	}
	// The expiry is persisted, not just reported.
	vr := env.mem.requestByTestator(testator.ID)
	if vr.Status != domain.RequestExpired {
		t.Fatalf("request status = %q, want expired", vr.Status)
	}
}

func TestSubmitOtp_WrongThenRightCode(t *testing.T) {
	env := newTestEnv(t)
	testator := seedTestator(t, env)
	openForUnlock(t, env, testator)
	ctx := context.Background()

	resp := identify(t, env, "Erik Olsen", "erik@example.com")
	_, err := env.unlock.SubmitOtp(ctx, dto.SubmitOtpRequest{SessionToken: resp.SessionToken, Code: "000000"}, "", "")
	if !errors.Is(err, domain.ErrInvalidCredential) {
		t.Fatalf("wrong code err = %v, want ErrInvalidCredential", err)
	}

	// A mismatch does not burn the challenge; the real code still works.
	next, err := env.unlock.SubmitOtp(ctx, dto.SubmitOtpRequest{SessionToken: resp.SessionToken, Code: otpFor(t, env, "erik@example.com")}, "", "")
	if err != nil {
		t.Fatalf("right code: %v", err)
	}
	if next.Step != "verify_contacts" {
		t.Fatalf("step = %q, want verify_contacts", next.Step)
	}
	// The rejection reason is recorded even though the call failed.
	var sawRejected bool
	for _, a := range env.mem.auditActions(testator.ID) {
		if a == domain.AuditOtpRejected {
			sawRejected = true
		}
	}
	if !sawRejected {
		t.Fatal("audit trail missing otp rejection")
	}
}

func TestSubmitOtp_ExpiredOtp(t *testing.T) {
	env := newTestEnv(t)
	testator := seedTestator(t, env)
	openForUnlock(t, env, testator)

	resp := identify(t, env, "Erik Olsen", "erik@example.com")
	otp := otpFor(t, env, "erik@example.com")
	env.clock.Advance(testOtpTTL + time.Minute)

	_, err := env.unlock.SubmitOtp(context.Background(), dto.SubmitOtpRequest{SessionToken: resp.SessionToken, Code: otp}, "", "")
	if !errors.Is(err, domain.ErrExpired) {
		t.Fatalf("err = %v, want ErrExpired", err)
	}
}

func TestRequestUnlock_ReidentifySupersedesEarlierOtp(t *testing.T) {
	env := newTestEnv(t)
	testator := seedTestator(t, env)
	openForUnlock(t, env, testator)
	ctx := context.Background()

	first := identify(t, env, "Erik Olsen", "erik@example.com")
	firstOtp := otpFor(t, env, "erik@example.com")

	// Another party's session must survive Erik's re-identify untouched.
	bea := identify(t, env, "Bea Andersson", "bea@example.com")
	beaOtp := otpFor(t, env, "bea@example.com")

	second := identify(t, env, "Erik Olsen", "erik@example.com")

	// The first issuance is dead the instant the second one exists, even
	// though its 15-minute window has not elapsed.
	_, err := env.unlock.SubmitOtp(ctx, dto.SubmitOtpRequest{SessionToken: first.SessionToken, Code: firstOtp}, "", "")
	if !errors.Is(err, domain.ErrExpired) {
		t.Fatalf("superseded session err = %v, want ErrExpired", err)
	}

	resp, err := env.unlock.SubmitOtp(ctx, dto.SubmitOtpRequest{SessionToken: second.SessionToken, Code: otpFor(t, env, "erik@example.com")}, "", "")
	if err != nil {
		t.Fatalf("fresh otp: %v", err)
	}
	if resp.Step != "verify_contacts" {
		t.Fatalf("step = %q, want verify_contacts", resp.Step)
	}

	if _, err := env.unlock.SubmitOtp(ctx, dto.SubmitOtpRequest{SessionToken: bea.SessionToken, Code: beaOtp}, "", ""); err != nil {
		t.Fatalf("bea otp: %v", err)
	}
}

func TestVerifyContacts_InsufficientMatches(t *testing.T) {
	env := newTestEnv(t)
	testator := seedTestator(t, env)
	openForUnlock(t, env, testator)
	ctx := context.Background()

	resp := identify(t, env, "Erik Olsen", "erik@example.com")
	resp, err := env.unlock.SubmitOtp(ctx, dto.SubmitOtpRequest{SessionToken: resp.SessionToken, Code: otpFor(t, env, "erik@example.com")}, "", "")
	if err != nil {
		t.Fatalf("submit otp: %v", err)
	}

	if _, err := env.unlock.VerifyContacts(ctx, dto.VerifyContactsRequest{SessionToken: resp.SessionToken, Names: []string{"bea"}}, "", ""); !errors.Is(err, ErrTooFewNames) {
		t.Fatalf("one name err = %v, want ErrTooFewNames", err)
	}

	// Two names, but only one matches another party. The acting party's own
	// name never counts.
	_, err = env.unlock.VerifyContacts(ctx, dto.VerifyContactsRequest{
		SessionToken: resp.SessionToken,
		Names:        []string{"bea", "erik olsen"},
	}, "", "")
	if !errors.Is(err, domain.ErrInvalidCredential) {
		t.Fatalf("self-match err = %v, want ErrInvalidCredential", err)
	}

	// The step is retryable with a better answer.
	next, err := env.unlock.VerifyContacts(ctx, dto.VerifyContactsRequest{
		SessionToken: resp.SessionToken,
		Names:        []string{"bea", "tara"},
	}, "", "")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if next.Step != "finalize" {
		t.Fatalf("step = %q, want finalize", next.Step)
	}
}

func TestVerifyContacts_DuplicateNamesOfOneParty(t *testing.T) {
	env := newTestEnv(t)
	testator := seedTestator(t, env)
	openForUnlock(t, env, testator)
	ctx := context.Background()

	resp := identify(t, env, "Erik Olsen", "erik@example.com")
	resp, err := env.unlock.SubmitOtp(ctx, dto.SubmitOtpRequest{SessionToken: resp.SessionToken, Code: otpFor(t, env, "erik@example.com")}, "", "")
	if err != nil {
		t.Fatalf("submit otp: %v", err)
	}

	// Two spellings of one person are still one person: the bar is two
	// distinct other parties, not two matching strings.
	for _, names := range [][]string{
		{"bea", "bea"},
		{"bea", "bea andersson"},
	} {
		_, err := env.unlock.VerifyContacts(ctx, dto.VerifyContactsRequest{SessionToken: resp.SessionToken, Names: names}, "", "")
		if !errors.Is(err, domain.ErrInvalidCredential) {
			t.Fatalf("names %v: err = %v, want ErrInvalidCredential", names, err)
		}
	}

	next, err := env.unlock.VerifyContacts(ctx, dto.VerifyContactsRequest{
		SessionToken: resp.SessionToken,
		Names:        []string{"bea", "tara"},
	}, "", "")
	if err != nil {
		t.Fatalf("distinct parties: %v", err)
	}
	if next.Step != "finalize" {
		t.Fatalf("step = %q, want finalize", next.Step)
	}
}

func TestVerifyContacts_StaleOtpRewindsSession(t *testing.T) {
	env := newTestEnv(t)
	testator := seedTestator(t, env)
	openForUnlock(t, env, testator)
	ctx := context.Background()

	resp := identify(t, env, "Erik Olsen", "erik@example.com")
	sessionID, err := env.tokens.Parse(resp.SessionToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	resp, err = env.unlock.SubmitOtp(ctx, dto.SubmitOtpRequest{SessionToken: resp.SessionToken, Code: otpFor(t, env, "erik@example.com")}, "", "")
	if err != nil {
		t.Fatalf("submit otp: %v", err)
	}

	// The OTP proof goes stale before the contacts step.
	env.clock.Advance(testOtpTTL + time.Minute)
	_, err = env.unlock.VerifyContacts(ctx, dto.VerifyContactsRequest{
		SessionToken: resp.SessionToken,
		Names:        []string{"bea", "tara"},
	}, "", "")
	if !errors.Is(err, domain.ErrExpired) {
		t.Fatalf("err = %v, want ErrExpired", err)
	}

	sess := env.mem.sessionByID(sessionID)
	if sess.Status != domain.SessionIdentified {
		t.Fatalf("session status = %q, want identified after rewind", sess.Status)
	}
	if sess.OtpVerifiedAt != nil {
		t.Fatal("otp proof not cleared by rewind")
	}
}

func TestFinalize_WrongCredential(t *testing.T) {
	env := newTestEnv(t)
	testator := seedTestator(t, env)
	codes := openForUnlock(t, env, testator)
	token := walkToFinalize(t, env, "Erik Olsen", "erik@example.com", []string{"bea", "tara"})

	// Another party's code does not finalize this party's session.
	_, err := env.unlock.Finalize(context.Background(), dto.FinalizeRequest{
		SessionToken:   token,
		CredentialCode: codes["bea@example.com"],
	}, "", "")
	if !errors.Is(err, domain.ErrInvalidCredential) {
		t.Fatalf("err = %v, want ErrInvalidCredential", err)
	}
	if env.mem.requestByTestator(testator.ID).Status != domain.RequestPending {
		t.Fatal("request left pending state on a rejected finalize")
	}
}

func TestFinalize_CancelledByCheckIn(t *testing.T) {
	env := newTestEnv(t)
	testator := seedTestator(t, env)
	codes := openForUnlock(t, env, testator)
	token := walkToFinalize(t, env, "Erik Olsen", "erik@example.com", []string{"bea", "tara"})

	// The testator proves alive before the finalize commits: the check-in
	// wins and the release is off.
	if _, err := env.checkin.RecordCheckIn(context.Background(), testator.ID, "", ""); err != nil {
		t.Fatalf("check-in: %v", err)
	}

	_, err := env.unlock.Finalize(context.Background(), dto.FinalizeRequest{
		SessionToken:   token,
		CredentialCode: codes["erik@example.com"],
	}, "", "")
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	frozen, err := env.testators.Get(context.Background(), testator.ID)
	if err != nil {
		t.Fatalf("get testator: %v", err)
	}
	if frozen.Frozen {
		t.Fatal("testator frozen despite cancelled request")
	}
}

func TestFinalize_WinnerRetryReturnsSamePackage(t *testing.T) {
	env := newTestEnv(t)
	testator := seedTestator(t, env)
	codes := openForUnlock(t, env, testator)
	token := walkToFinalize(t, env, "Erik Olsen", "erik@example.com", []string{"bea", "tara"})
	ctx := context.Background()

	first, err := env.unlock.Finalize(ctx, dto.FinalizeRequest{SessionToken: token, CredentialCode: codes["erik@example.com"]}, "", "")
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	second, err := env.unlock.Finalize(ctx, dto.FinalizeRequest{SessionToken: token, CredentialCode: codes["erik@example.com"]}, "", "")
	if err != nil {
		t.Fatalf("retry finalize: %v", err)
	}
	if first.RequestID != second.RequestID || !bytes.Equal(first.SealedContent, second.SealedContent) {
		t.Fatal("retry returned a different package")
	}
}

func TestFinalize_SecondPartyAfterRelease(t *testing.T) {
	env := newTestEnv(t)
	testator := seedTestator(t, env)
	codes := openForUnlock(t, env, testator)
	ctx := context.Background()

	// Bea gets all the way to the final step before Erik releases.
	beaToken := walkToFinalize(t, env, "Bea Andersson", "bea@example.com", []string{"erik", "tara"})
	erikToken := walkToFinalize(t, env, "Erik Olsen", "erik@example.com", []string{"bea", "tara"})

	if _, err := env.unlock.Finalize(ctx, dto.FinalizeRequest{SessionToken: erikToken, CredentialCode: codes["erik@example.com"]}, "", ""); err != nil {
		t.Fatalf("first finalize: %v", err)
	}

	// Bea's finalize finds the request completed.
	_, err := env.unlock.Finalize(ctx, dto.FinalizeRequest{SessionToken: beaToken, CredentialCode: codes["bea@example.com"]}, "", "")
	if !errors.Is(err, domain.ErrAlreadyReleased) {
		t.Fatalf("second finalize err = %v, want ErrAlreadyReleased", err)
	}

	// And a brand-new unlock attempt dies at identification: the testator
	// is permanently frozen.
	_, err = env.unlock.RequestUnlock(ctx, dto.IdentifyRequest{
		FullName: "Tara Lindqvist", Email: "tara@example.com", TestatorEmail: "olivia@example.com",
	}, "", "")
	if !errors.Is(err, domain.ErrAlreadyReleased) {
		t.Fatalf("post-release identify err = %v, want ErrAlreadyReleased", err)
	}
}

func TestFinalize_WrongStepRejected(t *testing.T) {
	env := newTestEnv(t)
	testator := seedTestator(t, env)
	codes := openForUnlock(t, env, testator)

	resp := identify(t, env, "Erik Olsen", "erik@example.com")
	_, err := env.unlock.Finalize(context.Background(), dto.FinalizeRequest{
		SessionToken:   resp.SessionToken,
		CredentialCode: codes["erik@example.com"],
	}, "", "")
	if !errors.Is(err, ErrWrongStep) {
		t.Fatalf("err = %v, want ErrWrongStep", err)
	}
}
