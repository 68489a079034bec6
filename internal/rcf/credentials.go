package rcf

import (
	"firestige.xyz/sle/internal/sle/pdu"
	"firestige.xyz/sle/internal/sle/session"
)

// CredentialSource is the part of the session that owns the local identity.
type CredentialSource interface {
	AuthLevel() session.AuthLevel
	MakeCredentials() []byte
}

// SelectCredentials returns fresh credentials when every operation must be
// authenticated, Unused otherwise.
func SelectCredentials(s CredentialSource) pdu.Credentials {
	if s.AuthLevel() == session.AuthAll {
		return pdu.Used(s.MakeCredentials())
	}
	return pdu.Unused()
}
