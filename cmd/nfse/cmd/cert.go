package cmd

import (
	"context"
	"crypto/ecdsa"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jhoicas/nfse-emissor/internal/domain/repository"
	"github.com/jhoicas/nfse-emissor/internal/infrastructure/certstore"
	"github.com/jhoicas/nfse-emissor/internal/infrastructure/nfse/signer"
	"github.com/jhoicas/nfse-emissor/internal/infrastructure/postgres"
	"github.com/jhoicas/nfse-emissor/pkg/config"
	pkgnfse "github.com/jhoicas/nfse-emissor/pkg/nfse"
)

var certCmd = &cobra.Command{
	Use:   "cert <file.p12>",
	Short: "Diagnostica un certificado A1 (PKCS#12)",
	Long: `Descifra el PKCS#12 y muestra sujeto, CNPJ del CN, emisor y vigencia.
Falla si la contraseña es incorrecta o el archivo no trae llave y certificado.`,
	Args: cobra.ExactArgs(1),
	RunE: runCert,
}

var certImportCmd = &cobra.Command{
	Use:   "import <file.p12> <ref>",
	Short: "Registra el PKCS#12 en el almacén de certificados (CERT_STORE)",
	Long: `Valida el bundle con --password y lo guarda bajo <ref>, la misma referencia
que debe quedar en fiscal_configs.certificate_ref.`,
	Args: cobra.ExactArgs(2),
	RunE: runCertImport,
}

func init() {
	rootCmd.AddCommand(certCmd)
	certCmd.AddCommand(certImportCmd)
}

// certInfo resumen del certificado para la salida.
type certInfo struct {
	Subject   string    `json:"subject"`
	CNPJ      string    `json:"cnpj,omitempty"`
	Issuer    string    `json:"issuer"`
	Serial    string    `json:"serial"`
	KeyType   string    `json:"key_type"`
	NotBefore time.Time `json:"not_before"`
	NotAfter  time.Time `json:"not_after"`
	DaysLeft  int       `json:"days_left"`
	Expired   bool      `json:"expired"`
}

func runCert(cmd *cobra.Command, args []string) error {
	printVerbose(cmd.ErrOrStderr(), "🔍 Leyendo %s\n", args[0])
	b, err := signer.LoadFromP12(args[0], certPassword)
	if err != nil {
		return err
	}
	return describeBundle(cmd.OutOrStdout(), b, time.Now())
}

func runCertImport(cmd *cobra.Command, args []string) error {
	path, ref := args[0], args[1]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("leer %s: %w", path, err)
	}
	b, err := signer.LoadBundle(data, certPassword)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	store, closeFn, err := openCertStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := store.Save(ctx, ref, data); err != nil {
		return fmt.Errorf("guardar certificado %q: %w", ref, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Certificado %s registrado como %q (%s)\n", b.Certificate.Subject.CommonName, ref, cfg.Cert.Store)
	return nil
}

// openCertStore abre solo el almacén configurado; el modo file no requiere base de datos.
func openCertStore(ctx context.Context, cfg *config.Config) (repository.CertificateStore, func(), error) {
	if cfg.Cert.Store == "file" {
		return certstore.NewFileStore(cfg.Cert.Dir), func() {}, nil
	}
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		return nil, nil, err
	}
	return postgres.NewCertificateRepository(pool), pool.Close, nil
}

func inspectBundle(b *signer.Bundle, now time.Time) certInfo {
	c := b.Certificate
	info := certInfo{
		Subject:   c.Subject.CommonName,
		CNPJ:      b.SubjectTaxID,
		Issuer:    c.Issuer.CommonName,
		Serial:    c.SerialNumber.String(),
		KeyType:   keyType(b),
		NotBefore: c.NotBefore,
		NotAfter:  c.NotAfter,
		Expired:   now.After(c.NotAfter),
	}
	if !info.Expired {
		info.DaysLeft = int(c.NotAfter.Sub(now).Hours() / 24)
	}
	return info
}

func keyType(b *signer.Bundle) string {
	switch k := b.PrivateKey.(type) {
	case *rsa.PrivateKey:
		return fmt.Sprintf("RSA %d", k.N.BitLen())
	case *ecdsa.PrivateKey:
		return "ECDSA " + k.Curve.Params().Name
	default:
		return fmt.Sprintf("%T", k)
	}
}

func describeBundle(w io.Writer, b *signer.Bundle, now time.Time) error {
	info := inspectBundle(b, now)
	if outputFormat == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	fmt.Fprintln(w, "🔐 CERTIFICADO A1")
	fmt.Fprintln(w, "----------------------------------")
	fmt.Fprintf(w, "Sujeto:   %s\n", info.Subject)
	if info.CNPJ != "" {
		fmt.Fprintf(w, "CNPJ:     %s\n", pkgnfse.FormatTaxID(info.CNPJ))
	} else {
		fmt.Fprintln(w, "CNPJ:     (el CN no contiene CNPJ)")
	}
	fmt.Fprintf(w, "Emisor:   %s\n", info.Issuer)
	fmt.Fprintf(w, "Serie:    %s\n", info.Serial)
	fmt.Fprintf(w, "Llave:    %s\n", info.KeyType)
	fmt.Fprintf(w, "Vigencia: %s → %s\n", info.NotBefore.Format("2006-01-02"), info.NotAfter.Format("2006-01-02"))
	if info.Expired {
		fmt.Fprintln(w, "❌ VENCIDO")
	} else {
		fmt.Fprintf(w, "✅ Vigente (%d días restantes)\n", info.DaysLeft)
	}
	return nil
}
