package main

import (
	"flag"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"stakevault/crypto"
)

// runKeygen prints a secp256k1 key with the account address and validator
// identity it controls. --import re-derives both from an existing key.
func runKeygen(s *session, args []string) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	fs.SetOutput(s.stderr)
	importHex := fs.String("import", "", "hex-encoded private key")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected positional arguments: %w", errUsage)
	}
	var (
		priv *crypto.PrivateKey
		err  error
	)
	if *importHex != "" {
		raw, decodeErr := hexutil.Decode("0x" + strings.TrimPrefix(*importHex, "0x"))
		if decodeErr != nil {
			return fmt.Errorf("--import: %w", decodeErr)
		}
		priv, err = crypto.PrivateKeyFromBytes(raw)
	} else {
		priv, err = crypto.GeneratePrivateKey()
	}
	if err != nil {
		return fmt.Errorf("keygen: %w", err)
	}
	pub := priv.PubKey()
	fmt.Fprintf(s.stdout, "Private key:  %s\n", hexutil.Encode(priv.Bytes()))
	fmt.Fprintf(s.stdout, "Address:      %s\n", pub.Address())
	fmt.Fprintf(s.stdout, "Validator:    %s\n", pub.ValidatorKey())
	return nil
}
