// Package main: wallet generation.
//
// walletgen derives the BIP44 ethereum addresses of the HD wallet used by the cold wallet endpoints, and generates
// new random seeds.
//
//	walletgen seed
//	walletgen --seed HEX addresses --wallet 0 --count 5
package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/tarancss/hd"
	"github.com/urfave/cli"

	"github.com/tarancss/luxhedge/lib/config"
)

// seedLen is the length in bytes of the seeds generated.
const seedLen = 64

// ErrNoSeed is returned when no seed is given.
var ErrNoSeed = errors.New("a hex seed is required, use --seed or " + config.EnvPrefix + "SEED")

func main() {
	app := cli.NewApp()
	app.Name = "walletgen"
	app.Usage = "HD wallet seeds and addresses for the luxhedge cold wallet"

	seed := cli.StringFlag{
		Name:   "seed",
		Usage:  "hex encoded 64-byte seed",
		EnvVar: config.EnvPrefix + "SEED",
	}

	app.Flags = []cli.Flag{seed}
	app.Commands = []cli.Command{
		{
			Name:  "seed",
			Usage: "Generate a new random seed",
			Action: func(clictx *cli.Context) error {
				s, err := newSeed(rand.Reader)
				if err != nil {
					return err
				}

				fmt.Println(s)

				return nil
			},
		},
		{
			Name:  "addresses",
			Usage: "Print the addresses of a wallet",
			Flags: []cli.Flag{
				seed,
				cli.UintFlag{Name: "wallet", Usage: "wallet (BIP44 account) number"},
				cli.BoolFlag{Name: "change", Usage: "derive change addresses instead of external ones"},
				cli.UintFlag{Name: "from", Usage: "first address number"},
				cli.UintFlag{Name: "count", Usage: "number of addresses", Value: 10},
			},
			Action: func(clictx *cli.Context) error {
				s := clictx.String("seed")
				if s == "" {
					s = clictx.GlobalString("seed")
				}

				w, err := wallet(s)
				if err != nil {
					return err
				}

				change := hd.External
				if clictx.Bool("change") {
					change = hd.Change
				}

				return addresses(os.Stdout, w, uint32(clictx.Uint("wallet")), change, uint32(clictx.Uint("from")),
					uint32(clictx.Uint("count")))
			},
		},
	}

	// There is no default command.
	app.Action = func(clictx *cli.Context) error {
		return cli.ShowAppHelp(clictx)
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// newSeed returns a hex encoded seed read from r.
func newSeed(r io.Reader) (string, error) {
	b := make([]byte, seedLen)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("reading random seed: %w", err)
	}

	return hex.EncodeToString(b), nil
}

// wallet returns the HD wallet of the hex encoded seed s.
func wallet(s string) (*hd.HdWallet, error) {
	if s == "" {
		return nil, ErrNoSeed
	}

	seed, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding seed: %w", err)
	}

	return hd.Init(seed)
}

// addresses writes to out count addresses of wallet starting at from, one per line with its path.
func addresses(out io.Writer, w *hd.HdWallet, wallet uint32, change uint8, from, count uint32) error {
	for id := from; id < from+count; id++ {
		addr, _, _, err := w.Address(wallet, change, id)
		if err != nil {
			return fmt.Errorf("deriving address %d: %w", id, err)
		}

		fmt.Fprintf(out, "m/44'/60'/%d'/%d/%d'\t0x%s\n", wallet, change, id, hex.EncodeToString(addr))
	}

	return nil
}
