package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fpang/litter-report/internal/app"
	"github.com/fpang/litter-report/internal/media"
	"github.com/spf13/cobra"
)

var geocodeCmd = &cobra.Command{
	Use:   "geocode",
	Short: "Query the address provider within the reporting region",
}

var geocodeSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find candidate locations for an address",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		region, err := cfg.Region()
		if err != nil {
			return err
		}
		provider, err := app.NewBuilder(cfg, nil).Geocoder(region)
		if err != nil {
			return err
		}
		candidates, err := provider.Search(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		return printJSON(cmd, candidates)
	},
}

var geocodeReverseCmd = &cobra.Command{
	Use:   "reverse <lat> <lon>",
	Short: "Look up the address at a coordinate",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		lat, lon, err := parseCoordinates(args)
		if err != nil {
			return err
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		region, err := cfg.Region()
		if err != nil {
			return err
		}
		provider, err := app.NewBuilder(cfg, nil).Geocoder(region)
		if err != nil {
			return err
		}
		addr, err := provider.Reverse(cmd.Context(), lat, lon)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), addr)
		return nil
	},
}

var regionCmd = &cobra.Command{
	Use:   "region",
	Short: "Inspect the allowed reporting region",
}

var regionCheckCmd = &cobra.Command{
	Use:   "check <lat> <lon>",
	Short: "Report whether a coordinate is inside the region",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		lat, lon, err := parseCoordinates(args)
		if err != nil {
			return err
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		region, err := cfg.Region()
		if err != nil {
			return err
		}
		verdict := "outside"
		if region.Contains(lat, lon) {
			verdict = "inside"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is %s %s\n", media.CoordinatesToDMS(lat, lon), verdict, region.Name)
		return nil
	},
}

func init() {
	geocodeCmd.AddCommand(geocodeSearchCmd, geocodeReverseCmd)
	regionCmd.AddCommand(regionCheckCmd)
}

func parseCoordinates(args []string) (float64, float64, error) {
	lat, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("latitude %q: %w", args[0], err)
	}
	lon, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("longitude %q: %w", args[1], err)
	}
	return lat, lon, nil
}
