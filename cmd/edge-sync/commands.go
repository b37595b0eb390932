package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/jhoicas/pos-multitienda/internal/application/syncer"
	"github.com/jhoicas/pos-multitienda/internal/infrastructure/centralclient"
	"github.com/jhoicas/pos-multitienda/internal/infrastructure/sqlite"
	"github.com/jhoicas/pos-multitienda/pkg/clock"
	"github.com/jhoicas/pos-multitienda/pkg/config"
	"github.com/jhoicas/pos-multitienda/pkg/logger"
	"github.com/spf13/cobra"
)

var validFormats = []string{"text", "json"}

// rootOptions flags globales.
type rootOptions struct {
	cfg     *config.Config
	log     *logger.Logger
	journal string
	store   string
	format  string
}

func newRootCommand(cfg *config.Config, log *logger.Logger) *cobra.Command {
	opts := &rootOptions{cfg: cfg, log: log}

	cmd := &cobra.Command{
		Use:           "edge-sync",
		Short:         "Sincronización de una tienda EDGE con la central",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.format != "text" && opts.format != "json" {
				return fmt.Errorf("formato inválido %q: use uno de %v", opts.format, validFormats)
			}
			if opts.store == "" {
				return errors.New("falta la tienda EDGE: use --store o EDGE_STORE_ID")
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.journal, "journal", cfg.Edge.JournalPath, "ruta del journal SQLite")
	cmd.PersistentFlags().StringVar(&opts.store, "store", cfg.Edge.StoreID, "id de la tienda EDGE")
	cmd.PersistentFlags().StringVar(&opts.format, "format", "text", "formato de salida (json|text)")

	cmd.AddCommand(newSealCommand(opts))
	cmd.AddCommand(newPushCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))
	return cmd
}

func (o *rootOptions) openJournal() (*sqlite.Journal, error) {
	j, err := sqlite.Open(o.journal, clock.NewSystem())
	if err != nil {
		return nil, fmt.Errorf("abrir journal %s: %w", o.journal, err)
	}
	return j, nil
}

func (o *rootOptions) print(w io.Writer, v any, text string) error {
	if o.format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(w, text)
	return err
}

// ──────────────────────────────────────────────────────────────────────────────
// seal
// ──────────────────────────────────────────────────────────────────────────────

func newSealCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seal",
		Short: "Sella las operaciones pendientes en sobres sin enviarlos",
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := opts.openJournal()
			if err != nil {
				return err
			}
			defer j.Close()

			// Sellar no usa transporte.
			p := syncer.NewPusher(j, nil, opts.store, opts.cfg.Sync.EnvelopeMaxOps, opts.cfg.Sync.BackoffBase, opts.log)
			n, err := p.SealPending(cmd.Context())
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), map[string]int{"sealed": n}, fmt.Sprintf("sobres sellados: %d", n))
		},
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// push
// ──────────────────────────────────────────────────────────────────────────────

type pushOptions struct {
	*rootOptions
	centralURL string
	token      string
	timeout    time.Duration
	loop       bool
}

func newPushCommand(root *rootOptions) *cobra.Command {
	opts := &pushOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "push",
		Short: "Sella y envía los sobres sin confirmar a la central",
		Long: `Sella las operaciones pendientes y envía en orden los sobres que la central
aún no confirmó. Con --loop repite hasta recibir SIGINT/SIGTERM, esperando
el backoff que sugiera la central entre vueltas.

Ejemplos:
  edge-sync push --central http://central:8080 --token $CENTRAL_TOKEN
  edge-sync push --loop`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPush(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.centralURL, "central", root.cfg.Edge.CentralURL, "URL base de la central")
	cmd.Flags().StringVar(&opts.token, "token", root.cfg.Edge.CentralToken, "JWT con rol de alcance CENTRAL para publicar en la central")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "timeout por sobre")
	cmd.Flags().BoolVar(&opts.loop, "loop", false, "enviar continuamente")
	return cmd
}

func runPush(cmd *cobra.Command, opts *pushOptions) error {
	if opts.centralURL == "" {
		return errors.New("falta la URL de la central: use --central o CENTRAL_URL")
	}
	j, err := opts.openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	transport := centralclient.New(opts.centralURL, opts.token, opts.timeout)
	p := syncer.NewPusher(j, transport, opts.store, opts.cfg.Sync.EnvelopeMaxOps, opts.cfg.Sync.BackoffBase, opts.log)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if opts.loop {
		if err := p.Loop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}

	report, err := p.PushOnce(ctx)
	if report != nil {
		text := fmt.Sprintf("sellados: %d  enviados: %d  confirmado hasta: %d  conflictos: %d",
			report.Sealed, report.Sent, report.Acknowledged, report.Conflicts)
		if perr := opts.print(cmd.OutOrStdout(), report, text); perr != nil {
			return perr
		}
	}
	if err != nil {
		return fmt.Errorf("envío interrumpido (reintentar en %s): %w", report.BackoffHint, err)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// status
// ──────────────────────────────────────────────────────────────────────────────

type journalStatus struct {
	StoreID      string `json:"store_id"`
	LastProduced int64  `json:"last_produced"`
	Acknowledged int64  `json:"acknowledged"`
	Unsent       int64  `json:"unsent_envelopes"`
	PendingOps   int    `json:"pending_operations"`
	StagedOps    int    `json:"staged_operations"`
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Muestra secuencias y operaciones pendientes del journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := opts.openJournal()
			if err != nil {
				return err
			}
			defer j.Close()

			ctx := cmd.Context()
			st := journalStatus{StoreID: opts.store}
			if st.LastProduced, err = j.LastProduced(ctx); err != nil {
				return err
			}
			if st.Acknowledged, err = j.Acknowledged(ctx); err != nil {
				return err
			}
			if st.PendingOps, err = j.PendingCount(ctx); err != nil {
				return err
			}
			if st.StagedOps, err = j.StagedCount(ctx); err != nil {
				return err
			}
			st.Unsent = st.LastProduced - st.Acknowledged

			text := fmt.Sprintf("tienda %s\núltimo sobre sellado: %d\nconfirmado por la central: %d\nsobres sin confirmar: %d\noperaciones sin sellar: %d\noperaciones en espera: %d",
				st.StoreID, st.LastProduced, st.Acknowledged, st.Unsent, st.PendingOps, st.StagedOps)
			return opts.print(cmd.OutOrStdout(), st, text)
		},
	}
}
