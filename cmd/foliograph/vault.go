package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/skarlatos/foliograph/internal/config"
	"github.com/skarlatos/foliograph/internal/store"
	"github.com/skarlatos/foliograph/internal/vault"
)

func runVault(args []string) error {
	if len(args) == 0 {
		printVaultUsage()
		return nil
	}

	passphrase := os.Getenv("FOLIOGRAPH_VAULT_PASSPHRASE")
	if passphrase == "" {
		return fmt.Errorf("FOLIOGRAPH_VAULT_PASSPHRASE environment variable is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	keyring, err := vault.NewKeyring(db, passphrase)
	if err != nil {
		return fmt.Errorf("open vault: %w", err)
	}

	switch args[0] {
	case "set":
		return vaultSet(keyring, args[1:])
	case "get":
		return vaultGet(keyring, args[1:])
	case "delete":
		return vaultDelete(keyring, args[1:])
	case "names":
		return vaultNames()
	default:
		printVaultUsage()
		return fmt.Errorf("unknown vault command: %s", args[0])
	}
}

func printVaultUsage() {
	fmt.Fprintf(os.Stderr, `Usage: foliograph vault <command>

Commands:
  set <name> <value>   Seal and store a credential
  get <name>           Retrieve and decrypt a credential
  delete <name>        Delete a credential
  names                List the credential names the engine reads

Environment:
  FOLIOGRAPH_VAULT_PASSPHRASE   Required. Encryption passphrase.
`)
}

func vaultSet(k *vault.Keyring, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: foliograph vault set <name> <value>")
	}
	if err := k.Put(args[0], args[1]); err != nil {
		return err
	}
	fmt.Printf("Credential %q saved\n", args[0])
	return nil
}

func vaultGet(k *vault.Keyring, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: foliograph vault get <name>")
	}
	value, err := k.Get(args[0])
	if err != nil {
		return err
	}
	if value == "" {
		return fmt.Errorf("credential %q not found", args[0])
	}
	fmt.Println(value)
	return nil
}

func vaultDelete(k *vault.Keyring, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: foliograph vault delete <name>")
	}
	if err := k.Delete(args[0]); err != nil {
		return err
	}
	fmt.Printf("Credential %q deleted\n", args[0])
	return nil
}

func vaultNames() error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tUSED FOR")
	fmt.Fprintf(w, "%s\tgateway API key when config leaves it blank\n", vault.CredGatewayKey)
	fmt.Fprintf(w, "%s\tweb API bearer token when config leaves it blank\n", vault.CredWebAuth)
	return w.Flush()
}
