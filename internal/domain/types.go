package domain

import "github.com/google/uuid"

type TestatorID = uuid.UUID
type CheckInID = uuid.UUID
type RequestID = uuid.UUID
type PartyID = uuid.UUID
type CredentialID = uuid.UUID
type SessionID = uuid.UUID
