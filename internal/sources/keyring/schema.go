package keyring

// PrincipalEntry is one API principal in keyring.yaml
type PrincipalEntry struct {
	ID        string `yaml:"id"`
	KeySHA256 string `yaml:"key_sha256"` // hex sha256 of the bearer token, never the token itself
	Grant     int64  `yaml:"grant"`      // opening balance credited once, on first sight
}

// Config is the root structure of keyring.yaml
//
//	principals:
//	  - id: ownerA
//	    key_sha256: 9f86d0...
//	    grant: 1000
type Config struct {
	Principals []PrincipalEntry `yaml:"principals"`
}
