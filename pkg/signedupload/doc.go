// Package signedupload holds the types shared by the signed upload authorization protocol:
// the credential bundle issued by the server, the upload result returned by the media host,
// and the error taxonomy used on both sides.
//
// The protocol is split across subpackages:
//
//   - keystore: immutable signing configuration (cloud name, public key, secret)
//   - signing: parameter canonicalization and HMAC signatures
//   - auth: bearer token verification against the identity provider
//   - issuance: the HTTP endpoint that authenticates callers and issues bundles
//   - credential: client-side normalization of bundle field spellings
//   - upload: the multipart upload against the media host
//   - client: issuance transports and the per-attempt state machine
//   - mediahost: a local media host that verifies signatures, for development and tests
//
// # Basic Usage
//
//	ks := keystore.New("demo", "123456", "secret", keystore.WithNamespace("scrubbed"))
//	svc := issuance.NewService(ks)
//	h := issuance.NewHandler(svc, auth.NewJWTVerifier([]byte("jwt-secret")))
//	http.ListenAndServe(":8080", h.Routes())
//
// Client side:
//
//	c, _ := client.New(client.Config{Transport: client.TransportDirect, Endpoint: issuerURL}, tokens)
//	up := client.NewUploader(c, upload.NewExecutor())
//	res, err := up.Upload(ctx, upload.File{Name: "scan.pdf", Reader: f})
package signedupload
