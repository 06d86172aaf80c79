package signing

// Option is a functional option for configuring a Signer
type Option func(*Signer)

// WithSecret sets the secret used for HMAC signing
func WithSecret(secret []byte) Option {
	return func(s *Signer) {
		s.secret = append([]byte(nil), secret...)
	}
}

// WithSecretString is WithSecret for string secrets
func WithSecretString(secret string) Option {
	return WithSecret([]byte(secret))
}

// WithHash selects the HMAC hash, "sha256" (default) or "sha1".
// Unknown names leave the current hash in place; use ParseHash to validate config input first.
func WithHash(name string) Option {
	return func(s *Signer) {
		if canonical, fn, ok := hashByName(name); ok {
			s.hashFunc = fn
			s.hashName = canonical
		}
	}
}

// ParseHash validates a hash name coming from configuration and returns its lower-case form.
func ParseHash(name string) (string, error) {
	canonical, _, ok := hashByName(name)
	if !ok {
		return "", ErrUnknownHash
	}
	return canonical, nil
}
