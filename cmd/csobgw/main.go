// Command csobgw calls the card payment gateway from the command line and
// runs the demo merchant application.
package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/alovak/csob-gateway/demo"
	"github.com/alovak/csob-gateway/gateway"
	"github.com/alovak/csob-gateway/gateway/models"
	"github.com/alovak/csob-gateway/internal/orderno"
	"github.com/alovak/csob-gateway/internal/security"
	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"
)

var Version = "dev"

func main() {
	if err := execute(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cli is the state shared by subcommands.
type cli struct {
	out        io.Writer
	configPath string
	cfg        *config
	logger     *slog.Logger
	client     *gateway.Client
	closeHSM   func()
}

// openSigner opens the HSM signer named in the config, if any.
var openSigner = hsmSigner

// execute runs the command line. The HSM session is closed whether or not
// the command succeeds.
func execute(out io.Writer, args []string) error {
	c := &cli{out: out}
	defer c.release()

	root := c.rootCmd()
	root.SetArgs(args)
	return root.Execute()
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "csobgw",
		Short:         "Card payment gateway client",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(c.out)
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", os.Getenv("CSOB_CONFIG"), "path to the YAML config file")

	root.AddCommand(
		c.echoCmd(),
		c.initCmd(),
		c.payIDCmd("status", "Show the status of a payment", (*gateway.Client).PaymentStatus),
		c.payIDCmd("reverse", "Reverse an authorized payment", (*gateway.Client).PaymentReverse),
		c.payIDCmd("close", "Send an authorized payment to settlement", (*gateway.Client).PaymentClose),
		c.payIDCmd("oneclick-start", "Start an initialized one-click payment", (*gateway.Client).OneClickStart),
		c.refundCmd(),
		c.processURLCmd(),
		c.oneClickCmd(),
		c.oneClickEchoCmd(),
		c.serveCmd(),
		keygenCmd(c.out),
	)
	return root
}

// release closes the HSM session opened by setup.
func (c *cli) release() {
	if c.closeHSM != nil {
		c.closeHSM()
		c.closeHSM = nil
	}
}

// setup loads the configuration and builds the gateway client.
func (c *cli) setup() error {
	cfg, err := loadConfig(c.configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	var opts []gateway.Option
	if cfg.DttmTZ != "" {
		loc, err := time.LoadLocation(cfg.DttmTZ)
		if err != nil {
			logger.Info("invalid dttm_tz; using default UTC", slog.String("tz", cfg.DttmTZ), slog.Any("err", err))
		} else {
			opts = append(opts, gateway.WithLocation(loc))
		}
	}

	version, err := gateway.LookupVersion(cfg.Gateway.Version)
	if err != nil {
		return err
	}
	signer, closeHSM, err := openSigner(cfg.HSM, version.Algorithm)
	if err != nil {
		return err
	}
	c.closeHSM = closeHSM
	if signer != nil {
		opts = append(opts, gateway.WithSigner(signer))
	}

	client, err := gateway.New(logger, &cfg.Gateway, opts...)
	if err != nil {
		c.release()
		return err
	}
	c.cfg, c.logger, c.client = cfg, logger, client
	return nil
}

func (c *cli) print(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) echoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "echo",
		Short: "Check connectivity and keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.setup(); err != nil {
				return err
			}
			resp, err := c.client.Echo(cmd.Context())
			if err != nil {
				return err
			}
			return c.print(resp)
		},
	}
}

func (c *cli) initCmd() *cobra.Command {
	var (
		amount       int64
		currency     string
		name         string
		orderNo      string
		returnURL    string
		closePayment bool
		language     string
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a payment and print its payment page URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.setup(); err != nil {
				return err
			}
			if orderNo == "" {
				n, err := orderno.Generate(orderno.MaxLen)
				if err != nil {
					return err
				}
				orderNo = n
			}
			resp, err := c.client.PaymentInit(cmd.Context(), &models.PaymentInitRequest{
				OrderNo:      orderNo,
				TotalAmount:  amount,
				Currency:     models.Currency(strings.ToUpper(currency)),
				ClosePayment: closePayment,
				ReturnURL:    returnURL,
				Cart:         []models.CartItem{{Name: normalizeItemName(name), Quantity: 1, Amount: amount}},
				Language:     models.Language(strings.ToUpper(language)),
			})
			if err != nil {
				return err
			}
			processURL, err := c.client.ProcessPaymentURL(resp.PayID)
			if err != nil {
				return err
			}
			return c.print(struct {
				*models.PaymentResponse
				OrderNo    string `json:"orderNo"`
				ProcessURL string `json:"processUrl"`
			}{resp, orderNo, processURL})
		},
	}
	cmd.Flags().Int64Var(&amount, "amount", 0, "amount in the smallest currency unit")
	cmd.Flags().StringVar(&currency, "currency", "CZK", "currency code")
	cmd.Flags().StringVar(&name, "name", "Payment", "cart item name")
	cmd.Flags().StringVar(&orderNo, "order-no", "", "order number (generated when empty)")
	cmd.Flags().StringVar(&returnURL, "return-url", "", "URL the customer returns to")
	cmd.Flags().BoolVar(&closePayment, "close", false, "settle the payment automatically")
	cmd.Flags().StringVar(&language, "language", "", "payment page language")
	cmd.MarkFlagRequired("amount")
	cmd.MarkFlagRequired("return-url")
	return cmd
}

func (c *cli) payIDCmd(use, short string, call func(*gateway.Client, context.Context, string) (*models.PaymentResponse, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <payId>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.setup(); err != nil {
				return err
			}
			resp, err := call(c.client, cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.print(resp)
		},
	}
}

func (c *cli) refundCmd() *cobra.Command {
	var amount int64
	cmd := &cobra.Command{
		Use:   "refund <payId>",
		Short: "Refund a settled payment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.setup(); err != nil {
				return err
			}
			var amt *int64
			if cmd.Flags().Changed("amount") {
				amt = &amount
			}
			resp, err := c.client.PaymentRefund(cmd.Context(), args[0], amt)
			if err != nil {
				return err
			}
			return c.print(resp)
		},
	}
	cmd.Flags().Int64Var(&amount, "amount", 0, "partial refund amount (full refund when omitted)")
	return cmd
}

func (c *cli) processURLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process-url <payId>",
		Short: "Print the signed payment page URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.setup(); err != nil {
				return err
			}
			u, err := c.client.ProcessPaymentURL(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, u)
			return nil
		},
	}
}

func (c *cli) oneClickCmd() *cobra.Command {
	var (
		amount   int64
		orderNo  string
		clientIP string
	)
	cmd := &cobra.Command{
		Use:   "oneclick <origPayId>",
		Short: "Charge the card of a template payment again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.setup(); err != nil {
				return err
			}
			if orderNo == "" {
				n, err := orderno.Generate(orderno.MaxLen)
				if err != nil {
					return err
				}
				orderNo = n
			}
			req := &models.OneClickInitRequest{OrigPayID: args[0], OrderNo: orderNo, ClientIP: clientIP}
			if cmd.Flags().Changed("amount") {
				req.TotalAmount = &amount
			}
			resp, err := c.client.OneClick(cmd.Context(), req)
			if err != nil {
				return err
			}
			return c.print(resp)
		},
	}
	cmd.Flags().Int64Var(&amount, "amount", 0, "amount (template amount when omitted)")
	cmd.Flags().StringVar(&orderNo, "order-no", "", "order number (generated when empty)")
	cmd.Flags().StringVar(&clientIP, "client-ip", "", "customer IP address")
	return cmd
}

func (c *cli) oneClickEchoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "oneclick-echo <origPayId>",
		Short: "Check that a template payment can be charged",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.setup(); err != nil {
				return err
			}
			resp, err := c.client.OneClickEcho(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.print(resp)
		},
	}
}

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the demo merchant application",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.setup(); err != nil {
				return err
			}
			app := demo.NewApp(c.logger, &c.cfg.Demo, c.client)
			if err := app.Start(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()

			app.Shutdown()
			return nil
		},
	}
}

func keygenCmd(out io.Writer) *cobra.Command {
	var (
		dir  string
		bits int
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a merchant RSA key pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if bits < 2048 {
				return fmt.Errorf("key size must be at least 2048 bits")
			}
			key, err := rsa.GenerateKey(rand.Reader, bits)
			if err != nil {
				return err
			}
			priv := security.EncodePrivateKey(key)
			defer security.Wipe(priv)
			pub, err := security.EncodePublicKey(&key.PublicKey)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return err
			}
			privPath := filepath.Join(dir, "merchant.key")
			pubPath := filepath.Join(dir, "merchant.pub")
			if err := os.WriteFile(privPath, priv, 0o600); err != nil {
				return err
			}
			if err := os.WriteFile(pubPath, pub, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(out, "private key: %s\npublic key:  %s\n", privPath, pubPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "out-dir", ".", "directory for merchant.key and merchant.pub")
	cmd.Flags().IntVar(&bits, "bits", 2048, "key size")
	return cmd
}

// normalizeItemName collapses whitespace and trims the name to the 20
// characters the payment page shows.
func normalizeItemName(name string) string {
	normalized := strings.Join(strings.Fields(name), " ")
	if normalized == "" {
		return "Payment"
	}
	r := []rune(normalized)
	if len(r) > 20 {
		return string(r[:20])
	}
	return normalized
}
