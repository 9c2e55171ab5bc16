// Package main implements a simple CLI that runs an overlay node.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	urfave "github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	z "github.com/veilnet/veil/logger"
	"github.com/veilnet/veil/overlay"
)

// fileConfig mirrors the overlay configuration surface in TOML.
type fileConfig struct {
	Address            string   `toml:"address"`
	Port               int      `toml:"port"`
	K                  int      `toml:"k"`
	Alpha              int      `toml:"alpha"`
	CircuitLength      int      `toml:"circuit_length"`
	MixingDelayMaxMs   int      `toml:"mixing_delay_max_ms"`
	CoverTraffic       *bool    `toml:"cover_traffic_enabled"`
	MeshType           string   `toml:"mesh_type"`
	Role               string   `toml:"role"`
	SupernodeList      []string `toml:"supernode_list"`
	MaxPeerConnections int      `toml:"max_peer_connections"`
}

func main() {
	app := &urfave.App{
		Name:  "veil",
		Usage: "run an anonymous overlay node",
		Flags: []urfave.Flag{
			&urfave.StringFlag{
				Name:  "config",
				Usage: "path to a TOML configuration file",
			},
			&urfave.IntFlag{
				Name:  "port",
				Usage: "UDP and TCP bind port",
				Value: overlay.DefaultPort,
			},
			&urfave.StringSliceFlag{
				Name:  "announce",
				Usage: "endpoints to announce to at startup",
			},
			&urfave.BoolFlag{
				Name:  "no-cover",
				Usage: "disable cover traffic",
			},
		},
		Action: run,
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *urfave.Context) error {
	conf := overlay.Configuration{
		Port:                 c.Int("port"),
		CoverTrafficDisabled: c.Bool("no-cover"),
	}

	if path := c.String("config"); path != "" {
		err := loadConfig(path, &conf)
		if err != nil {
			return err
		}
	}

	node, err := overlay.NewNode(conf)
	if err != nil {
		return xerrors.Errorf("failed to create node: %v", err)
	}

	node.OnAnonymousMessage(func(payload []byte) {
		z.Logger.Info().Msgf("anonymous message: %s", string(payload))
	})
	node.OnPeerConnected(func(peerID uint64) {
		z.Logger.Info().Msgf("peer connected: %d", peerID)
	})

	err = node.Start()
	if err != nil {
		return xerrors.Errorf("failed to start node: %v", err)
	}

	for _, endpoint := range c.StringSlice("announce") {
		err := node.Announce(endpoint)
		if err != nil {
			z.Logger.Err(err).Msgf("failed to announce to %s", endpoint)
		}
	}

	z.Logger.Info().Msgf("node %s up, stream on %s, datagram on %s",
		node.ID().Hex(), node.StreamAddr(), node.DatagramAddr())

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	return node.Stop()
}

func loadConfig(path string, conf *overlay.Configuration) error {
	var file fileConfig

	_, err := toml.DecodeFile(path, &file)
	if err != nil {
		return xerrors.Errorf("failed to load config file %s: %v", path, err)
	}

	conf.Address = file.Address
	if file.Port > 0 {
		conf.Port = file.Port
	}
	conf.K = file.K
	conf.Alpha = file.Alpha
	conf.CircuitLength = file.CircuitLength
	if file.MixingDelayMaxMs > 0 {
		conf.MixingDelayMax = time.Duration(file.MixingDelayMaxMs) * time.Millisecond
	}
	if file.CoverTraffic != nil {
		conf.CoverTrafficDisabled = !*file.CoverTraffic
	}
	conf.MeshType = file.MeshType
	conf.Role = file.Role
	conf.SupernodeList = file.SupernodeList
	conf.MaxPeerConnections = file.MaxPeerConnections

	raw, _ := json.Marshal(file)
	z.Logger.Debug().Msgf("loaded configuration %s", raw)

	return nil
}
