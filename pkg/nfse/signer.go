package nfse

import "crypto/tls"

// Signer firma un documento XML de NFS-e y devuelve el XML con la firma adjunta.
type Signer interface {
	// Sign toma el XML sin firma, el Id del elemento de información (InfDeclaracaoPrestacaoServico / infDPS)
	// y el certificado con llave privada; retorna el XML con ds:Signature como último hijo de la raíz.
	Sign(xmlBytes []byte, elementID string, cert tls.Certificate) ([]byte, error)
}
