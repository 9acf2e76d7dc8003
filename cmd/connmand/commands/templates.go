package commands

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ofono-connman/connmand/provision"
)

var (
	templatesDBPath string
	templatesMCC    string
	templatesMNC    string
	templatesSPN    string
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Inspect the provisioning database",
}

var templatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List provisioning templates matching an MCC/MNC (and optional SPN)",
	RunE:  runTemplatesList,
}

func init() {
	templatesCmd.PersistentFlags().StringVar(&templatesDBPath, "db", "/var/lib/connmand/provision.db", "provisioning database path")
	templatesListCmd.Flags().StringVar(&templatesMCC, "mcc", "", "mobile country code")
	templatesListCmd.Flags().StringVar(&templatesMNC, "mnc", "", "mobile network code")
	templatesListCmd.Flags().StringVar(&templatesSPN, "spn", "", "service provider name (optional)")
	_ = templatesListCmd.MarkFlagRequired("mcc")
	_ = templatesListCmd.MarkFlagRequired("mnc")
	templatesCmd.AddCommand(templatesListCmd)
}

func runTemplatesList(cmd *cobra.Command, args []string) error {
	db, err := provision.Open(templatesDBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	recs, err := db.Lookup(templatesMCC, templatesMNC, templatesSPN)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Name", "Type", "APN", "Protocol", "Auth", "MMS Proxy", "MMS Center"})
	table.SetAutoFormatHeaders(false)
	table.SetBorder(false)
	for _, r := range recs {
		table.Append([]string{r.Name, r.Type.String(), r.AccessPointName, r.Protocol.String(), r.AuthenticationMethod.String(), r.MessageProxy, r.MessageCenter})
	}
	table.Render()
	if len(recs) == 0 {
		fmt.Fprintln(os.Stdout, "no templates found for that carrier")
	}
	return nil
}
