package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "1.0.0"

	// Flags globales
	verbose      bool
	outputFormat string
	certPassword string
)

var rootCmd = &cobra.Command{
	Use:   "nfse",
	Short: "Herramientas de operación del emisor de NFS-e",
	Long: `nfse diagnostica certificados A1, firma y verifica documentos y dispara
emisiones/consultas usando la misma configuración que la API (.env / variables de entorno).

Ejemplos:
  # Diagnosticar un certificado
  nfse cert empresa.p12 --password 123456

  # Registrar el certificado en el almacén configurado (CERT_STORE)
  nfse cert import empresa.p12 prestador-01

  # Emitir y consultar una nota
  nfse emit 3f2a...
  nfse status 3f2a...

  # Verificar un lote firmado
  nfse verify lote.xml`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute ejecuta el comando raíz.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log detallado (nivel debug)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "text", "Formato de salida (text, json)")
	rootCmd.PersistentFlags().StringVar(&certPassword, "password", "", "Contraseña del PKCS#12 (env: NFSE_CERT_PASSWORD)")

	cobra.OnInitialize(initConfig)
}

func initConfig() {
	if certPassword == "" {
		certPassword = os.Getenv("NFSE_CERT_PASSWORD")
	}
}

func printVerbose(w io.Writer, format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(w, format, args...)
	}
}
