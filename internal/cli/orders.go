package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/buildtall-systems/vinopack/internal/db"
)

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "List stored orders",
	Long:  `List every order with its items. Unfinished orders come first, newest first within each group.`,
	Args:  cobra.NoArgs,
	RunE:  listOrders,
}

var deleteOrderCmd = &cobra.Command{
	Use:   "delete <order-id>",
	Short: "Delete an order and its items",
	Args:  cobra.ExactArgs(1),
	RunE:  deleteOrder,
}

func init() {
	ordersCmd.AddCommand(deleteOrderCmd)
	rootCmd.AddCommand(ordersCmd)
}

func openDB() (*db.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := database.Migrate(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return database, nil
}

func listOrders(cmd *cobra.Command, args []string) error {
	database, err := openDB()
	if err != nil {
		return err
	}
	defer func() { _ = database.Close() }()

	orders, err := database.ListOrdersWithItems(cmd.Context())
	if err != nil {
		return err
	}
	return printOrders(cmd, orders)
}

func printOrders(cmd *cobra.Command, orders []db.OrderWithItems) error {
	out := cmd.OutOrStdout()
	if len(orders) == 0 {
		_, err := fmt.Fprintln(out, "no orders")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tSTATUS\tITEMS")
	for _, o := range orders {
		items := make([]string, len(o.Items))
		for i, it := range o.Items {
			items[i] = fmt.Sprintf("%s x%d", it.WineType, it.Quantity)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", o.ID, o.CreatedAt.Format("2006-01-02 15:04:05"), o.Status, strings.Join(items, ", "))
	}
	return w.Flush()
}

func deleteOrder(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid order id %q", args[0])
	}

	database, err := openDB()
	if err != nil {
		return err
	}
	defer func() { _ = database.Close() }()

	if err := database.DeleteOrder(cmd.Context(), id); err != nil {
		if errors.Is(err, db.ErrOrderNotFound) {
			return fmt.Errorf("order %d not found", id)
		}
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted order %d\n", id)
	return nil
}
