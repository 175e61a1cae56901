package qcrypto

// InitialKeyPair is the client/server directional key pair derived for
// the Initial packet number space. Initial packets always use
// AES-128-GCM regardless of whatever suite the handshake later
// negotiates for Handshake/1-RTT.
type InitialKeyPair struct {
	Client *DirectionalKeys
	Server *DirectionalKeys
}

// DeriveInitialKeyPair derives the Initial AEAD and header-protection
// keys for both directions from the client's original destination
// connection ID, per RFC 9001 section 5.2.
func DeriveInitialKeyPair(dcid []byte) (*InitialKeyPair, error) {
	secrets := DeriveInitialSecrets(dcid)
	suite := NewSuite(SuiteAES128GCM)

	clientDir, err := NewDirectionalKeys(suite, DeriveKeys(suite, secrets.Client))
	if err != nil {
		return nil, err
	}
	serverDir, err := NewDirectionalKeys(suite, DeriveKeys(suite, secrets.Server))
	if err != nil {
		return nil, err
	}
	return &InitialKeyPair{Client: clientDir, Server: serverDir}, nil
}
