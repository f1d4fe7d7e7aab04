package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dubwave/relay/relay/internal/config"
	"github.com/dubwave/relay/relay/internal/decryptor"
)

var (
	sealClientID     string
	sealClientSecret string
	sealBody         bool
)

var sealCmd = &cobra.Command{
	Use:   "seal [plaintext]",
	Short: "Encrypt a payload the way the upstream provider does",
	Long: `Encrypt a JSON payload with the configured client credentials, producing
the base64 ciphertext an upstream webhook would carry. Reads stdin when no
argument is given. Useful for fixtures and manual testing:

  relay seal '{"status":3,"_id":"abc","video":"https://cdn/x.mp4"}' --body |
    curl -X POST -H 'Content-Type: application/json' -d @- localhost:3007/api/webhook`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSeal,
}

func init() {
	sealCmd.Flags().StringVar(&sealClientID, "client-id", "", "client id (default: from config)")
	sealCmd.Flags().StringVar(&sealClientSecret, "client-secret", "", "client secret (default: from config)")
	sealCmd.Flags().BoolVar(&sealBody, "body", false, "wrap the ciphertext in a webhook request body")
}

func runSeal(cmd *cobra.Command, args []string) error {
	var plaintext string
	if len(args) == 1 {
		plaintext = args[0]
	} else {
		in, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		plaintext = strings.TrimRight(string(in), "\r\n")
	}

	secrets, err := sealSecrets()
	if err != nil {
		return err
	}

	ciphertext, err := secrets.Encrypt(plaintext)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !sealBody {
		_, err = fmt.Fprintln(out, ciphertext)
		return err
	}
	return json.NewEncoder(out).Encode(map[string]string{"encryptedData": ciphertext})
}

// sealSecrets prefers flags and falls back to the loaded configuration.
func sealSecrets() (decryptor.Secrets, error) {
	secrets := decryptor.Secrets{ClientID: sealClientID, ClientSecret: sealClientSecret}
	if secrets.ClientID == "" || secrets.ClientSecret == "" {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return decryptor.Secrets{}, err
		}
		if secrets.ClientID == "" {
			secrets.ClientID = cfg.Secrets.ClientID
		}
		if secrets.ClientSecret == "" {
			secrets.ClientSecret = cfg.Secrets.ClientSecret
		}
	}
	if err := secrets.Validate(); err != nil {
		return decryptor.Secrets{}, err
	}
	return secrets, nil
}
