package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/cenkalti/log"
	"github.com/drizzlebt/drizzle"
	"github.com/drizzlebt/drizzle/internal/bencode"
	"github.com/drizzlebt/drizzle/internal/downloader"
	"github.com/drizzlebt/drizzle/internal/jsonutil"
	"github.com/drizzlebt/drizzle/internal/logger"
	"github.com/drizzlebt/drizzle/internal/metainfo"
	"github.com/drizzlebt/drizzle/internal/stringutil"
	"github.com/urfave/cli"
)

var (
	cfg       *drizzle.Config
	clientLog = logger.New("drizzle")
)

func main() {
	app := cli.NewApp()
	app.Name = "drizzle"
	app.Usage = "BitTorrent client"
	app.Version = drizzle.Version
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "read config from `FILE`",
			Value: drizzle.DefaultConfigPath,
		},
		cli.BoolFlag{
			Name:  "debug, d",
			Usage: "enable debug log",
		},
	}
	app.Before = handleBeforeCommand
	app.Commands = []cli.Command{
		{
			Name:      "decode",
			Usage:     "decode a bencoded value and print it as JSON",
			ArgsUsage: "<bencoded>",
			Action:    handleDecode,
		},
		{
			Name:      "encode",
			Usage:     "encode a JSON value, or a plain string, as bencode",
			ArgsUsage: "<value>",
			Action:    handleEncode,
		},
		{
			Name:      "info",
			Usage:     "print information about a torrent file",
			ArgsUsage: "<torrent>",
			Action:    handleInfo,
		},
		{
			Name:      "peers",
			Usage:     "print the peers returned by the tracker",
			ArgsUsage: "<torrent>",
			Action:    handlePeers,
		},
		{
			Name:      "handshake",
			Usage:     "do the BitTorrent handshake with a peer and print its ID",
			ArgsUsage: "<torrent> <ip:port>",
			Action:    handleHandshake,
		},
		{
			Name:      "download_piece",
			Usage:     "download a single piece",
			ArgsUsage: "<torrent> <piece index>",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "output, o",
					Usage: "write piece to `FILE`",
				},
			},
			Action: handleDownloadPiece,
		},
		{
			Name:      "download",
			Usage:     "download the whole file",
			ArgsUsage: "<torrent>",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "output, o",
					Usage: "write file to `FILE`, defaults to the name in torrent",
				},
				cli.DurationFlag{
					Name:  "progress",
					Usage: "print progress at this interval",
					Value: 5 * time.Second,
				},
			},
			Action: handleDownload,
		},
		{
			Name:      "create",
			Usage:     "create a torrent file",
			ArgsUsage: "<file>",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "output, o",
					Usage: "write torrent to `FILE`",
				},
				cli.StringFlag{
					Name:  "announce, a",
					Usage: "tracker URL",
				},
				cli.IntFlag{
					Name:  "piece-length, p",
					Usage: "piece length in bytes",
					Value: 256 << 10,
				},
				cli.StringFlag{
					Name:  "comment",
					Usage: "comment",
				},
			},
			Action: handleCreate,
		},
		{
			Name:  "config",
			Usage: "print the effective config",
			Flags: []cli.Flag{
				cli.BoolFlag{
					Name:  "save",
					Usage: "write the effective config to the config file",
				},
			},
			Action: handleConfig,
		},
	}
	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func handleBeforeCommand(c *cli.Context) error {
	var err error
	cfg, err = drizzle.LoadConfig(c.GlobalString("config"))
	if err != nil {
		return err
	}
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	if c.GlobalBool("debug") {
		level = log.DEBUG
	}
	logger.SetLevel(level)
	metainfo.Creator = "drizzle/" + drizzle.Version
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func requireArgs(c *cli.Context, n int) error {
	if c.NArg() != n {
		_ = cli.ShowCommandHelp(c, c.Command.Name)
		return fmt.Errorf("%s takes %d argument(s)", c.Command.Name, n)
	}
	return nil
}

func readTorrent(path string) (*metainfo.MetaInfo, error) {
	f, err := os.Open(path) // nolint: gosec
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return metainfo.New(f)
}

func newClient() (*drizzle.Client, error) {
	return drizzle.New(cfg)
}

func handleDecode(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	v, err := bencode.DecodeBytes([]byte(c.Args().Get(0)))
	if err != nil {
		return err
	}
	b, err := json.Marshal(bencode.ToInterface(v))
	if err != nil {
		return err
	}
	_, err = fmt.Println(string(b))
	return err
}

func handleEncode(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	arg := c.Args().Get(0)
	var x any = arg
	dec := json.NewDecoder(bytes.NewReader([]byte(arg)))
	dec.UseNumber()
	var j any
	if err := dec.Decode(&j); err == nil && !dec.More() {
		x = j
	}
	v, err := bencode.FromInterface(x)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(append(bencode.Encode(v), '\n'))
	return err
}

func handleInfo(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	mi, err := readTorrent(c.Args().Get(0))
	if err != nil {
		return err
	}
	fmt.Println("Tracker URL:", mi.Announce)
	fmt.Println("Name:", stringutil.Printable(mi.Info.Name))
	fmt.Println("Length:", mi.Info.Length)
	fmt.Println("Info Hash:", hex.EncodeToString(mi.Info.Hash[:]))
	fmt.Println("Piece Length:", mi.Info.PieceLength)
	fmt.Println("Piece Hashes:")
	for i := uint32(0); i < mi.Info.NumPieces; i++ {
		fmt.Println(hex.EncodeToString(mi.Info.HashOf(i)))
	}
	return nil
}

func handlePeers(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	mi, err := readTorrent(c.Args().Get(0))
	if err != nil {
		return err
	}
	cl, err := newClient()
	if err != nil {
		return err
	}
	defer cl.Close()
	ctx, cancel := signalContext()
	defer cancel()
	peers, err := cl.Peers(ctx, mi)
	if err != nil {
		return err
	}
	for _, p := range peers {
		fmt.Println(p.String())
	}
	return nil
}

func handleHandshake(c *cli.Context) error {
	if err := requireArgs(c, 2); err != nil {
		return err
	}
	mi, err := readTorrent(c.Args().Get(0))
	if err != nil {
		return err
	}
	cl, err := newClient()
	if err != nil {
		return err
	}
	defer cl.Close()
	ctx, cancel := signalContext()
	defer cancel()
	res, err := cl.Handshake(ctx, mi, c.Args().Get(1))
	if err != nil {
		return err
	}
	fmt.Println("Peer ID:", hex.EncodeToString(res.PeerID[:]))
	return nil
}

func handleDownloadPiece(c *cli.Context) error {
	if err := requireArgs(c, 2); err != nil {
		return err
	}
	output := c.String("output")
	if output == "" {
		return fmt.Errorf("output file is required")
	}
	mi, err := readTorrent(c.Args().Get(0))
	if err != nil {
		return err
	}
	index, err := strconv.ParseUint(c.Args().Get(1), 10, 32)
	if err != nil {
		return fmt.Errorf("invalid piece index: %w", err)
	}
	cl, err := newClient()
	if err != nil {
		return err
	}
	defer cl.Close()
	ctx, cancel := signalContext()
	defer cancel()
	data, err := cl.DownloadPiece(ctx, mi, uint32(index))
	if err != nil {
		return err
	}
	if err = os.WriteFile(output, data, 0640); err != nil {
		return err
	}
	fmt.Printf("Piece %d downloaded to %s.\n", index, output)
	return nil
}

func handleDownload(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	mi, err := readTorrent(c.Args().Get(0))
	if err != nil {
		return err
	}
	output := c.String("output")
	if output == "" {
		output = filepath.Base(mi.Info.Name)
	}
	cl, err := newClient()
	if err != nil {
		return err
	}
	defer cl.Close()
	ctx, cancel := signalContext()
	defer cancel()

	dl, err := cl.NewDownload(ctx, mi, output)
	if err != nil {
		return err
	}
	defer dl.Close()

	errC := make(chan error, 1)
	go func() { errC <- dl.Run(ctx) }()

	ticker := time.NewTicker(c.Duration("progress"))
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			printProgress(dl.Stats())
		case err = <-errC:
			if err != nil {
				return err
			}
			printProgress(dl.Stats())
			fmt.Printf("Downloaded %s to %s.\n", mi.Info.Name, output)
			return nil
		}
	}
}

func printProgress(s downloader.Stats) {
	clientLog.Infof("%d/%d pieces, %d peers, %d KiB/s", s.Pieces.Completed, s.Pieces.Total, s.Peers.Connected, s.Speed.Download/1024)
	b, err := jsonutil.MarshalCompactPretty(s)
	if err != nil {
		clientLog.Error(err)
		return
	}
	clientLog.Debug(string(b))
}

func handleCreate(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	path := c.Args().Get(0)
	output := c.String("output")
	if output == "" {
		output = filepath.Base(path) + ".torrent"
	}
	pieceLength := c.Int("piece-length")
	if pieceLength <= 0 {
		return fmt.Errorf("invalid piece length: %d", pieceLength)
	}
	data, err := os.ReadFile(path) // nolint: gosec
	if err != nil {
		return err
	}
	info := metainfo.NewInfoDict(filepath.Base(path), uint32(pieceLength), data)
	b := metainfo.NewBytes(c.String("announce"), info, c.String("comment"))
	return os.WriteFile(output, b, 0640)
}

func handleConfig(c *cli.Context) error {
	if c.Bool("save") {
		return cfg.Save(c.GlobalString("config"))
	}
	b, err := jsonutil.MarshalPretty(cfg)
	if err != nil {
		return err
	}
	_, err = fmt.Println(string(b))
	return err
}
