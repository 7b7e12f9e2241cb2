package wire

import (
	"crypto/hmac"
	"crypto/sha256"
)

// DeriveSessionKeys turns a completed handshake's DH shared secret and
// the two nonces exchanged in messages 38/78 into the pair of AES-128
// keys used for the session's encrypt and decrypt ciphers.
//
// The reduction is two HMAC-SHA256 passes, matching the derivation
// used by deployed RTMFP peers: each nonce is
// first used as an HMAC key over the other nonce to get a per-direction
// intermediate digest, then that digest is used as the HMAC key over
// the shared secret to get the direction's session key. Swapping which
// nonce plays "initiator" and "responder" is what lets both ends land
// on complementary (encrypt, decrypt) pairs without exchanging any
// further material.
func DeriveSessionKeys(sharedSecret, initiatorNonce, responderNonce []byte) (requestKey, responseKey [KeySize]byte) {
	requestDigest := hmacSum(initiatorNonce, responderNonce)
	responseDigest := hmacSum(responderNonce, initiatorNonce)

	requestFull := hmacSum(requestDigest[:], sharedSecret)
	responseFull := hmacSum(responseDigest[:], sharedSecret)

	copy(requestKey[:], requestFull[:KeySize])
	copy(responseKey[:], responseFull[:KeySize])
	return requestKey, responseKey
}

func hmacSum(key, data []byte) [sha256.Size]byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	var out [sha256.Size]byte
	mac.Sum(out[:0])
	return out
}
