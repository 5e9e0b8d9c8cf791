package main

import (
	"fmt"

	"github.com/diwise/integration-ruuvi/internal/pkg/application/alias"
	"github.com/diwise/integration-ruuvi/internal/pkg/application/datapoint"
	"github.com/spf13/pflag"
)

type options struct {
	measurementName string
	aliases         []string
	aliasFile       string
	verbose         bool
	keepMacColons   bool
	formatVersions  []uint8
	printLines      bool
	port            string
}

func parseFlags(args []string) (options, error) {
	opts := options{}

	fs := pflag.NewFlagSet(serviceName, pflag.ContinueOnError)
	fs.StringVar(&opts.measurementName, "influxdb-measurement", datapoint.DefaultMeasurementName, "The name of the measurement in InfluxDB line protocol.")
	fs.StringArrayVar(&opts.aliases, "alias", nil, "Human readable alias for a RuuviTag, e.g. --alias DE:AD:BE:EF:00:00=Sauna.")
	fs.StringVar(&opts.aliasFile, "alias-file", "", "Yaml file mapping RuuviTag addresses to names.")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output, log parse errors for unrecognized data.")
	fs.BoolVarP(&opts.keepMacColons, "keep-mac-colons", "m", false, "Do not strip the colons from the MAC address.")
	versions := fs.UintSlice("ruuvi-data-format-versions", nil, "Comma separated list of Ruuvi data formats to handle. If empty, all formats are handled.")
	fs.BoolVar(&opts.printLines, "print-lines", false, "Print every data point to stdout in line protocol.")
	fs.StringVar(&opts.port, "port", "8080", "Port for the health and metrics endpoints.")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	for _, v := range *versions {
		if v > 255 {
			return options{}, fmt.Errorf("invalid data format version %d", v)
		}
		opts.formatVersions = append(opts.formatVersions, uint8(v))
	}

	return opts, nil
}

func loadAliases(opts options) ([]alias.Alias, error) {
	aliases := []alias.Alias{}

	if opts.aliasFile != "" {
		fromFile, err := alias.LoadFile(opts.aliasFile)
		if err != nil {
			return nil, err
		}
		aliases = append(aliases, fromFile...)
	}

	for _, s := range opts.aliases {
		a, err := alias.Parse(s)
		if err != nil {
			return nil, err
		}
		aliases = append(aliases, a)
	}

	return aliases, nil
}
