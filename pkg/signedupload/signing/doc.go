// Package signing computes the signatures that authorize uploads to the media host.
//
// A parameter set is canonicalized by sorting its keys lexicographically and joining
// key=value pairs with "&". The canonical string is signed with HMAC (SHA-256 by default)
// and rendered as lowercase hex. Key order in the input never affects the result.
//
//	signer := signing.New(signing.WithSecretString(secret))
//	sig, err := signer.Sign(signing.Params{
//	    "timestamp": time.Now().Unix(),
//	    "folder":    "scrubbed/user-42",
//	})
//
// The media host recomputes the signature over the same fields, so the set passed to Sign
// must be exactly the set posted with the upload.
package signing
