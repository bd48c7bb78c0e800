package types

// IdentityAction is one operation against the identity contract. The
// concrete variants below are the only implementations; the binary codec
// switches over them.
type IdentityAction interface {
	isIdentityAction()
}

// RegisterIdentity creates a new account with its authentication method.
type RegisterIdentity struct {
	Account    string
	Nonce      uint64
	Salt       string
	Auth       AuthMethod
	InviteCode string
}

// VerifyIdentity re-attests an existing account.
type VerifyIdentity struct {
	Account string
	Nonce   uint64
}

// AddSessionKey authorizes a session key public half for the account.
type AddSessionKey struct {
	Account string
	Key     string
	// Expiration is an absolute unix timestamp in milliseconds.
	Expiration int64
	Whitelist  []string
	LaneID     string
	Nonce      uint64
}

// RemoveSessionKey revokes a previously authorized session key.
type RemoveSessionKey struct {
	Account string
	Key     string
	Nonce   uint64
}

// UseSessionKey authenticates one transaction with an authorized session key.
type UseSessionKey struct {
	Account string
	Nonce   uint64
}

func (RegisterIdentity) isIdentityAction()  {}
func (VerifyIdentity) isIdentityAction()    {}
func (AddSessionKey) isIdentityAction()     {}
func (RemoveSessionKey) isIdentityAction()  {}
func (UseSessionKey) isIdentityAction()     {}
