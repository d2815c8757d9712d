package cmd

import (
	"crypto/x509"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jhoicas/nfse-emissor/internal/infrastructure/nfse/signer"
	pkgnfse "github.com/jhoicas/nfse-emissor/pkg/nfse"
)

var (
	signElementID string
	signCertFile  string
	signDigest    string
	signOutput    string
)

var verifyCmd = &cobra.Command{
	Use:   "verify <signed.xml>",
	Short: "Verifica la firma XML-DSig de un lote/DPS",
	Long: `Recalcula el DigestValue de la Reference y valida el SignatureValue con el
certificado embebido en KeyInfo. Muestra el firmante.`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

var signCmd = &cobra.Command{
	Use:   "sign <file.xml>",
	Short: "Firma un XML con el certificado A1 (enveloped, Signature junto al elemento firmado)",
	Args:  cobra.ExactArgs(1),
	RunE:  runSign,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(signCmd)

	signCmd.Flags().StringVar(&signElementID, "id", "", "Id del elemento a firmar (InfDeclaracaoPrestacaoServico)")
	signCmd.Flags().StringVar(&signCertFile, "cert", "", "Archivo PKCS#12 del prestador")
	signCmd.Flags().StringVar(&signDigest, "digest", "sha1", "Algoritmo de digest (sha1, sha256)")
	signCmd.Flags().StringVarP(&signOutput, "output", "o", "", "Archivo de salida (por defecto stdout)")
	_ = signCmd.MarkFlagRequired("id")
	_ = signCmd.MarkFlagRequired("cert")
}

func runVerify(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("leer %s: %w", args[0], err)
	}
	cert, err := signer.Verify(data)
	if err != nil {
		return err
	}
	printSigner(cmd.OutOrStdout(), cert)
	return nil
}

func printSigner(w io.Writer, cert *x509.Certificate) {
	fmt.Fprintln(w, "✅ Firma válida")
	fmt.Fprintf(w, "   Firmante: %s\n", cert.Subject.CommonName)
	if cnpj := signer.CNPJFromCN(cert.Subject.CommonName); cnpj != "" {
		fmt.Fprintf(w, "   CNPJ:     %s\n", pkgnfse.FormatTaxID(cnpj))
	}
	fmt.Fprintf(w, "   Vence:    %s\n", cert.NotAfter.Format("2006-01-02"))
}

func runSign(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("leer %s: %w", args[0], err)
	}
	b, err := signer.LoadFromP12(signCertFile, certPassword)
	if err != nil {
		return err
	}
	printVerbose(cmd.ErrOrStderr(), "🔏 Firmando Id=%s con %s (%s)\n", signElementID, b.Certificate.Subject.CommonName, signDigest)

	signed, err := signer.NewDigitalSignatureService(signer.ParseDigest(signDigest)).Sign(data, signElementID, b.TLSCertificate())
	if err != nil {
		return err
	}
	if signOutput == "" {
		_, err = cmd.OutOrStdout().Write(signed)
		return err
	}
	return os.WriteFile(signOutput, signed, 0o644)
}
