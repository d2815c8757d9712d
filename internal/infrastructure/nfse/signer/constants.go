// Namespaces y algoritmos XMLDSig usados por los webservices ABRASF.

package signer

import "strings"

const (
	NamespaceDS        = "http://www.w3.org/2000/09/xmldsig#"
	AlgC14N            = "http://www.w3.org/TR/2001/REC-xml-c14n-20010315"
	TransformEnveloped = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"

	AlgRSASHA1   = "http://www.w3.org/2000/09/xmldsig#rsa-sha1"
	AlgSHA1      = "http://www.w3.org/2000/09/xmldsig#sha1"
	AlgRSASHA256 = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	AlgSHA256    = "http://www.w3.org/2001/04/xmlenc#sha256"
)

// Digest algoritmo de resumen de la Reference y de la firma del SignedInfo.
type Digest string

const (
	DigestSHA1   Digest = "sha1"
	DigestSHA256 Digest = "sha256"
)

// ParseDigest acepta "sha1"/"sha256" (sin distinguir mayúsculas). Cualquier otro valor usa SHA-1,
// que es lo que exige la mayoría de prefeituras.
func ParseDigest(s string) Digest {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "") {
	case "sha256":
		return DigestSHA256
	default:
		return DigestSHA1
	}
}

func (d Digest) signatureURI() string {
	if d == DigestSHA256 {
		return AlgRSASHA256
	}
	return AlgRSASHA1
}

func (d Digest) digestURI() string {
	if d == DigestSHA256 {
		return AlgSHA256
	}
	return AlgSHA1
}
