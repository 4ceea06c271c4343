package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"dispatch-backend/internal/config"
	"dispatch-backend/internal/models"
	"dispatch-backend/internal/services"
	"dispatch-backend/internal/services/routing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// stopFile is the input format of the optimize command
type stopFile struct {
	Start *models.Coordinate `json:"start"`
	Stops []models.Stop      `json:"stops"`
}

func newOptimizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "optimize STOPS.json",
		Short: "Order a file of stops and print the route as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			input, err := readStopFile(f)
			if err != nil {
				return err
			}
			if s := viper.GetString("start"); s != "" {
				start, err := parseCoordinate(s)
				if err != nil {
					return err
				}
				input.Start = &start
			}
			if input.Start == nil {
				return fmt.Errorf("no start location: set \"start\" in the file or pass --start lat,lng")
			}

			provider, err := providerFromFlags()
			if err != nil {
				return err
			}
			optimizer := services.NewRouteOptimizer(provider, nil, services.RouteOptimizerConfig{
				ServiceTime: viper.GetDuration("stop-service-time"),
			})

			ctx, cancel := context.WithTimeout(context.Background(), viper.GetDuration("timeout"))
			defer cancel()

			var route *models.Route
			if viper.GetBool("traffic") {
				route, err = optimizer.OptimizeWithTraffic(ctx, input.Stops, *input.Start, services.OptimizeOptions{})
			} else {
				route, err = optimizer.Optimize(ctx, input.Stops, *input.Start, services.OptimizeOptions{})
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(route)
		},
	}

	flags := cmd.Flags()
	flags.String("start", "", "start location as lat,lng (overrides the file)")
	flags.Bool("traffic", false, "use the traffic-aware distance matrix")
	flags.Bool("offline", false, "skip the provider and use nearest-neighbor only")
	flags.String("google-maps-api-key", "", "Google Maps API key (env GOOGLE_MAPS_API_KEY)")
	flags.String("google-maps-base-url", config.DefaultGoogleMapsBaseURL, "Google Maps API base URL")
	flags.Duration("provider-timeout", 0, "per-request provider timeout (default 10s)")
	flags.Duration("stop-service-time", services.DefaultServiceTime, "time spent at each stop")
	flags.Duration("timeout", time.Minute, "overall deadline for the optimization")
	viper.BindPFlags(flags)

	return cmd
}

func providerFromFlags() (routing.Provider, error) {
	key := viper.GetString("google-maps-api-key")
	if viper.GetBool("offline") || key == "" {
		fmt.Fprintln(os.Stderr, "No provider configured, using nearest-neighbor")
		return nil, nil
	}
	provider, err := routing.NewGoogleMapsProvider(routing.GoogleConfig{
		APIKey:  key,
		BaseURL: viper.GetString("google-maps-base-url"),
		Timeout: viper.GetDuration("provider-timeout"),
	})
	if err != nil {
		return nil, err
	}
	return provider, nil
}

func readStopFile(r io.Reader) (*stopFile, error) {
	var input stopFile
	if err := json.NewDecoder(r).Decode(&input); err != nil {
		return nil, fmt.Errorf("invalid stops file: %w", err)
	}
	if len(input.Stops) == 0 {
		return nil, fmt.Errorf("stops file has no stops")
	}
	for i := range input.Stops {
		if input.Stops[i].ID == "" {
			input.Stops[i].ID = strconv.Itoa(i + 1)
		}
	}
	return &input, nil
}

func parseCoordinate(s string) (models.Coordinate, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return models.Coordinate{}, fmt.Errorf("invalid coordinate %q: want lat,lng", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return models.Coordinate{}, fmt.Errorf("invalid latitude %q: %w", parts[0], err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return models.Coordinate{}, fmt.Errorf("invalid longitude %q: %w", parts[1], err)
	}
	c := models.Coordinate{Latitude: lat, Longitude: lng}
	if !c.Valid() {
		return models.Coordinate{}, fmt.Errorf("coordinate %q out of range", s)
	}
	return c, nil
}
