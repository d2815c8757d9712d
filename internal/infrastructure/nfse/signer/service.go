// Firma XMLDSig enveloped para lotes ABRASF y DPS del padrón nacional.
// La Reference apunta al elemento de información (Id) y la ds:Signature se agrega
// como último hijo del padre de ese elemento (Rps en ABRASF; la raíz si el
// elemento firmado cuelga de ella).

package signer

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/xml"
	"strings"

	"github.com/beevik/etree"
	"github.com/ucarion/c14n"

	"github.com/jhoicas/nfse-emissor/internal/domain"
	"github.com/jhoicas/nfse-emissor/pkg/nfse"
)

// DigitalSignatureService implementa nfse.Signer con RSA PKCS#1 v1.5 (determinístico).
type DigitalSignatureService struct {
	digest Digest
}

// NewDigitalSignatureService crea el servicio con el algoritmo de resumen indicado.
func NewDigitalSignatureService(d Digest) *DigitalSignatureService {
	if d != DigestSHA256 {
		d = DigestSHA1
	}
	return &DigitalSignatureService{digest: d}
}

// Digest algoritmo configurado.
func (s *DigitalSignatureService) Digest() Digest { return s.digest }

// Sign firma el elemento con atributo Id == elementID y agrega <Signature> como hermano
// siguiente, al final de su padre. Si el elemento es la raíz, la firma queda dentro de ella.
func (s *DigitalSignatureService) Sign(xmlBytes []byte, elementID string, cert tls.Certificate) ([]byte, error) {
	const op = "Sign"
	if len(xmlBytes) == 0 {
		return nil, &domain.SigningError{Op: op, Msg: "XML vacío"}
	}
	priv, ok := cert.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, &domain.SigningError{Op: op, Msg: "el certificado debe incluir llave privada RSA"}
	}
	if len(cert.Certificate) == 0 {
		return nil, &domain.SigningError{Op: op, Msg: "certificado vacío"}
	}
	leaf := cert.Leaf
	if leaf == nil {
		var err error
		if leaf, err = x509.ParseCertificate(cert.Certificate[0]); err != nil {
			return nil, &domain.SigningError{Op: op, Msg: "parsear certificado", Err: err}
		}
	}
	pub, ok := leaf.PublicKey.(*rsa.PublicKey)
	if !ok || !pub.Equal(&priv.PublicKey) {
		return nil, &domain.SigningError{Op: op, Msg: "la llave privada no corresponde al certificado"}
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return nil, &domain.SigningError{Op: op, Msg: "parsear XML", Err: err}
	}
	root := doc.Root()
	if root == nil {
		return nil, &domain.SigningError{Op: op, Msg: "documento sin raíz"}
	}
	target := findByID(root, elementID)
	if target == nil {
		return nil, &domain.SigningError{Op: op, Msg: "no se encontró el elemento Id=" + elementID}
	}

	// 1) Digest del elemento referenciado (C14N inclusivo con los xmlns heredados).
	canonicalRef, err := canonicalSubtree(target, false)
	if err != nil {
		return nil, &domain.SigningError{Op: op, Msg: "canonicalizar referencia", Err: err}
	}
	digestB64 := base64.StdEncoding.EncodeToString(s.sum(canonicalRef))

	// 2) Signature en su lugar definitivo; el SignedInfo se canonicaliza en contexto.
	sig := s.buildSignature(elementID, digestB64, leaf.Raw)
	holder := target.Parent()
	if holder == nil || target == root {
		holder = root
	}
	holder.AddChild(sig)

	signedInfo := sig.SelectElement("SignedInfo")
	canonicalSI, err := canonicalSubtree(signedInfo, false)
	if err != nil {
		return nil, &domain.SigningError{Op: op, Msg: "canonicalizar SignedInfo", Err: err}
	}
	value, err := rsa.SignPKCS1v15(nil, priv, s.hash(), s.sum(canonicalSI))
	if err != nil {
		return nil, &domain.SigningError{Op: op, Msg: "firmar SignedInfo", Err: err}
	}
	sig.SelectElement("SignatureValue").SetText(base64.StdEncoding.EncodeToString(value))

	var out bytes.Buffer
	if _, err := doc.WriteTo(&out); err != nil {
		return nil, &domain.SigningError{Op: op, Msg: "serializar XML", Err: err}
	}
	return out.Bytes(), nil
}

func (s *DigitalSignatureService) buildSignature(elementID, digestB64 string, certDER []byte) *etree.Element {
	sig := etree.NewElement("Signature")
	sig.CreateAttr("xmlns", NamespaceDS)

	si := sig.CreateElement("SignedInfo")
	si.CreateElement("CanonicalizationMethod").CreateAttr("Algorithm", AlgC14N)
	si.CreateElement("SignatureMethod").CreateAttr("Algorithm", s.digest.signatureURI())
	ref := si.CreateElement("Reference")
	ref.CreateAttr("URI", "#"+elementID)
	tr := ref.CreateElement("Transforms")
	tr.CreateElement("Transform").CreateAttr("Algorithm", TransformEnveloped)
	tr.CreateElement("Transform").CreateAttr("Algorithm", AlgC14N)
	ref.CreateElement("DigestMethod").CreateAttr("Algorithm", s.digest.digestURI())
	ref.CreateElement("DigestValue").SetText(digestB64)

	sig.CreateElement("SignatureValue")
	sig.CreateElement("KeyInfo").
		CreateElement("X509Data").
		CreateElement("X509Certificate").
		SetText(base64.StdEncoding.EncodeToString(certDER))
	return sig
}

func (s *DigitalSignatureService) hash() crypto.Hash {
	if s.digest == DigestSHA256 {
		return crypto.SHA256
	}
	return crypto.SHA1
}

func (s *DigitalSignatureService) sum(data []byte) []byte {
	if s.digest == DigestSHA256 {
		h := sha256.Sum256(data)
		return h[:]
	}
	h := sha1.Sum(data)
	return h[:]
}

// Verify comprueba un documento firmado por Sign: recalcula el digest de la Reference y
// valida SignatureValue con la llave pública del X509Certificate embebido.
// Devuelve el certificado firmante.
func Verify(signed []byte) (*x509.Certificate, error) {
	const op = "Verify"
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(signed); err != nil {
		return nil, &domain.SigningError{Op: op, Msg: "parsear XML", Err: err}
	}
	root := doc.Root()
	if root == nil {
		return nil, &domain.SigningError{Op: op, Msg: "documento sin raíz"}
	}
	sig := root.FindElement("//Signature")
	if sig == nil {
		return nil, &domain.SigningError{Op: op, Msg: "documento sin Signature"}
	}

	si := sig.SelectElement("SignedInfo")
	ref := si.FindElement("Reference")
	if ref == nil {
		return nil, &domain.SigningError{Op: op, Msg: "SignedInfo sin Reference"}
	}
	s := &DigitalSignatureService{digest: DigestSHA1}
	if dm := ref.SelectElement("DigestMethod"); dm != nil && dm.SelectAttrValue("Algorithm", "") == AlgSHA256 {
		s.digest = DigestSHA256
	}

	certEl := sig.FindElement("KeyInfo/X509Data/X509Certificate")
	if certEl == nil {
		return nil, &domain.SigningError{Op: op, Msg: "Signature sin X509Certificate"}
	}
	der, err := base64.StdEncoding.DecodeString(strings.TrimSpace(certEl.Text()))
	if err != nil {
		return nil, &domain.SigningError{Op: op, Msg: "X509Certificate inválido", Err: err}
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, &domain.SigningError{Op: op, Msg: "X509Certificate inválido", Err: err}
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, &domain.SigningError{Op: op, Msg: "llave pública no RSA"}
	}

	id := strings.TrimPrefix(ref.SelectAttrValue("URI", ""), "#")
	target := findByID(root, id)
	if target == nil {
		return nil, &domain.SigningError{Op: op, Msg: "no se encontró el elemento Id=" + id}
	}
	canonicalRef, err := canonicalSubtree(target, true)
	if err != nil {
		return nil, &domain.SigningError{Op: op, Msg: "canonicalizar referencia", Err: err}
	}
	dv := ref.SelectElement("DigestValue")
	if dv == nil || strings.TrimSpace(dv.Text()) != base64.StdEncoding.EncodeToString(s.sum(canonicalRef)) {
		return nil, &domain.SigningError{Op: op, Msg: "DigestValue no coincide"}
	}

	canonicalSI, err := canonicalSubtree(si, false)
	if err != nil {
		return nil, &domain.SigningError{Op: op, Msg: "canonicalizar SignedInfo", Err: err}
	}
	sv := sig.SelectElement("SignatureValue")
	if sv == nil {
		return nil, &domain.SigningError{Op: op, Msg: "Signature sin SignatureValue"}
	}
	value, err := base64.StdEncoding.DecodeString(strings.TrimSpace(sv.Text()))
	if err != nil {
		return nil, &domain.SigningError{Op: op, Msg: "SignatureValue inválido", Err: err}
	}
	if err := rsa.VerifyPKCS1v15(pub, s.hash(), s.sum(canonicalSI), value); err != nil {
		return nil, &domain.SigningError{Op: op, Msg: "SignatureValue no coincide", Err: err}
	}
	return cert, nil
}

var _ nfse.Signer = (*DigitalSignatureService)(nil)

// ── helpers ───────────────────────────────────────────────────────────────────

func findByID(e *etree.Element, id string) *etree.Element {
	if id == "" {
		return nil
	}
	if e.SelectAttrValue("Id", "") == id {
		return e
	}
	for _, c := range e.ChildElements() {
		if f := findByID(c, id); f != nil {
			return f
		}
	}
	return nil
}

// canonicalSubtree serializa una copia de e con los xmlns declarados en sus ancestros
// (el más cercano gana) y la pasa por C14N. dropSignature aplica la transformación enveloped.
func canonicalSubtree(e *etree.Element, dropSignature bool) ([]byte, error) {
	cp := e.Copy()
	declared := map[string]bool{}
	for _, a := range cp.Attr {
		if key, ok := nsKey(a); ok {
			declared[key] = true
		}
	}
	for p := e.Parent(); p != nil; p = p.Parent() {
		for _, a := range p.Attr {
			key, ok := nsKey(a)
			if !ok || declared[key] {
				continue
			}
			declared[key] = true
			cp.CreateAttr(key, a.Value)
		}
	}
	if dropSignature {
		for _, c := range cp.ChildElements() {
			if c.Tag == "Signature" {
				cp.RemoveChild(c)
			}
		}
	}

	doc := etree.NewDocument()
	doc.SetRoot(cp)
	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return nil, err
	}
	return canonicalizeXML(buf.Bytes())
}

func nsKey(a etree.Attr) (string, bool) {
	switch {
	case a.Space == "" && a.Key == "xmlns":
		return "xmlns", true
	case a.Space == "xmlns":
		return "xmlns:" + a.Key, true
	}
	return "", false
}

func canonicalizeXML(data []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = map[string]string{}
	return c14n.Canonicalize(dec)
}
