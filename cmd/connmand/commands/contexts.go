package commands

import (
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ofono-connman/connmand/settings"
)

var (
	contextsDir  string
	contextsIMSI string
)

var contextsCmd = &cobra.Command{
	Use:   "contexts",
	Short: "Inspect a subscriber's persisted Primary Contexts",
}

var contextsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the Primary Contexts persisted for an IMSI",
	RunE:  runContextsList,
}

func init() {
	contextsCmd.PersistentFlags().StringVar(&contextsDir, "dir", "/var/lib/connmand", "settings directory")
	contextsListCmd.Flags().StringVar(&contextsIMSI, "imsi", "", "subscriber IMSI")
	_ = contextsListCmd.MarkFlagRequired("imsi")
	contextsCmd.AddCommand(contextsListCmd)
}

func runContextsList(cmd *cobra.Command, args []string) error {
	store, err := settings.NewStore(contextsDir)
	if err != nil {
		return err
	}

	recs, err := store.LoadContexts(contextsIMSI)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Name", "Type", "APN", "Protocol", "Auth"})
	table.SetAutoFormatHeaders(false)
	table.SetBorder(false)
	for _, r := range recs {
		table.Append([]string{
			strconv.Itoa(int(r.ID)), r.Name, r.Type.String(), r.AccessPointName,
			r.Protocol.String(), r.AuthenticationMethod.String(),
		})
	}
	table.Render()
	return nil
}
