package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jhoicas/nfse-emissor/internal/application/dto"
	"github.com/jhoicas/nfse-emissor/internal/bootstrap"
	"github.com/jhoicas/nfse-emissor/internal/domain/nfse"
	"github.com/jhoicas/nfse-emissor/pkg/config"
	"github.com/jhoicas/nfse-emissor/pkg/logger"
)

var emitCmd = &cobra.Command{
	Use:   "emit <invoice-id>",
	Short: "Construye, firma y transmite una nota",
	Long: `Ejecuta el mismo pipeline que POST /api/nfse/:id/emit y persiste el resultado.
Una falla de transporte deja la nota en pending con su clave de idempotencia; volver a
ejecutar emit reutiliza la clave.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd, func(ctx context.Context, svc *bootstrap.Services) (nfse.Result, error) {
			return svc.Orchestrator.Emit(ctx, args[0])
		}, args[0])
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <invoice-id>",
	Short: "Consulta el lote/DPS por protocolo y reconcilia la nota",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd, func(ctx context.Context, svc *bootstrap.Services) (nfse.Result, error) {
			return svc.Orchestrator.CheckStatus(ctx, args[0])
		}, args[0])
	},
}

func init() {
	rootCmd.AddCommand(emitCmd)
	rootCmd.AddCommand(statusCmd)
}

// withServices carga configuración, arma los servicios y ejecuta fn sobre la nota.
func withServices(cmd *cobra.Command, fn func(context.Context, *bootstrap.Services) (nfse.Result, error), invoiceID string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	level := cfg.App.LogLevel
	if verbose {
		level = "debug"
	}
	log := logger.New(logger.Config{Env: "development", Level: level, Service: "nfse-cli", Out: cmd.ErrOrStderr()})

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	svc, err := bootstrap.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer svc.Close()

	res, err := fn(ctx, svc)
	if err != nil {
		return err
	}
	return printResult(cmd.OutOrStdout(), invoiceID, res)
}

func printResult(w io.Writer, invoiceID string, res nfse.Result) error {
	if outputFormat == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(dto.FromResult(invoiceID, res))
	}
	switch res.Kind {
	case nfse.KindSuccess:
		fmt.Fprintf(w, "✅ %s\n", res.String())
		if res.PDFURL != "" {
			fmt.Fprintf(w, "   PDF: %s\n", res.PDFURL)
		}
	case nfse.KindPending:
		fmt.Fprintf(w, "⏳ %s\n", res.String())
	default:
		fmt.Fprintf(w, "❌ %s\n", res.String())
		for _, m := range res.Errors {
			fmt.Fprintf(w, "   - %s\n", m.String())
		}
	}
	return nil
}
