package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func connectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Connect to the driver and print the claimed client id",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			rt, err := newFacade(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			fmt.Printf("clientId=%d dir=%s\n", rt.facade.ClientID(), cfg.AeronDirectoryName)
			return nil
		},
	}
}

func pubCmd() *cobra.Command {
	var exclusive bool
	cmd := &cobra.Command{
		Use:   "pub <channel> <streamId>",
		Short: "Register a publication and print its registration id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			rt, err := newFacade(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			channel := args[0]
			streamID, err := parseStreamID(args[1])
			if err != nil {
				return err
			}

			var regID int64
			if exclusive {
				pub, err := rt.facade.AddExclusivePublication(channel, streamID)
				if err != nil {
					return err
				}
				regID = pub.RegistrationID()
			} else {
				pub, err := rt.facade.AddPublication(channel, streamID)
				if err != nil {
					return err
				}
				regID = pub.RegistrationID()
			}

			// requestId is a diagnostic correlator for this CLI invocation
			// only; it is distinct from the protocol's own int64
			// correlation ids and never crosses the CnC boundary.
			fmt.Printf("registrationId=%d requestId=%s\n", regID, uuid.NewString())
			return nil
		},
	}
	cmd.Flags().BoolVar(&exclusive, "exclusive", false, "Register an exclusive publication")
	return cmd
}

func subCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sub <channel> <streamId>",
		Short: "Register a subscription and print its registration id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			rt, err := newFacade(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			channel := args[0]
			streamID, err := parseStreamID(args[1])
			if err != nil {
				return err
			}

			sub, err := rt.facade.AddSubscription(channel, streamID)
			if err != nil {
				return err
			}

			fmt.Printf("registrationId=%d requestId=%s\n", sub.RegistrationID(), uuid.NewString())
			return nil
		},
	}
}

func countersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "counters",
		Short: "Dump every allocated counter's id, label, and value",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			rt, err := newFacade(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			return dumpCounters(rt.facade)
		},
	}
}
