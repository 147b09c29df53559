package cli

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/buildtall-systems/vinopack/internal/config"
	"github.com/buildtall-systems/vinopack/internal/db"
	"github.com/buildtall-systems/vinopack/internal/pubsub"
)

func TestOpenTransport_Backends(t *testing.T) {
	ctx := context.Background()

	tr, err := openTransport(ctx, &config.Config{Transport: config.TransportConfig{Backend: config.BackendMemory}})
	if err != nil {
		t.Fatalf("memory backend error = %v", err)
	}
	if _, ok := tr.(*pubsub.MemoryBroker); !ok {
		t.Errorf("memory backend returned %T", tr)
	}
	_ = tr.Close()

	tr, err = openTransport(ctx, &config.Config{
		Transport: config.TransportConfig{Backend: config.BackendRedis},
		Redis:     config.RedisConfig{Addr: "localhost:0"},
	})
	if err != nil {
		t.Fatalf("redis backend error = %v", err)
	}
	if _, ok := tr.(*pubsub.RedisTransport); !ok {
		t.Errorf("redis backend returned %T", tr)
	}
	_ = tr.Close()

	if _, err := openTransport(ctx, &config.Config{Transport: config.TransportConfig{Backend: "pigeon"}}); err == nil {
		t.Error("unknown backend should fail")
	}
}

func TestPrintOrders(t *testing.T) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)

	created := time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)
	err := printOrders(cmd, []db.OrderWithItems{{
		Order: db.Order{ID: 3, Status: "packing", CreatedAt: created},
		Items: []db.OrderItem{
			{WineType: "GRAN CAPITANA", Quantity: 2},
			{WineType: "LA TRUCHA", Quantity: 1},
		},
	}})
	if err != nil {
		t.Fatalf("printOrders() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{"ID", "STATUS", "3", "2026-05-04 09:30:00", "packing", "GRAN CAPITANA x2, LA TRUCHA x1"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintOrders_Empty(t *testing.T) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)

	if err := printOrders(cmd, nil); err != nil {
		t.Fatalf("printOrders() error = %v", err)
	}
	if strings.TrimSpace(buf.String()) != "no orders" {
		t.Errorf("output = %q", buf.String())
	}
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	defer versionCmd.SetOut(nil)

	versionCmd.Run(versionCmd, nil)

	if !strings.HasPrefix(buf.String(), "vinopack dev") {
		t.Errorf("version output = %q", buf.String())
	}
}

func TestOrdersCommand_DeleteAndList(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	path := t.TempDir() + "/orders.db"
	viper.Set("database.path", path)
	viper.Set("log.level", "error")

	database, err := db.Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := database.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	order, err := database.CreateOrder(context.Background(), []db.NewItem{{WineType: "LA TRUCHA", Quantity: 1}})
	if err != nil {
		t.Fatalf("CreateOrder() error = %v", err)
	}
	_ = database.Close()

	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	cmd.SetContext(context.Background())

	if err := listOrders(cmd, nil); err != nil {
		t.Fatalf("listOrders() error = %v", err)
	}
	if !strings.Contains(buf.String(), "LA TRUCHA x1") {
		t.Errorf("listing missing order:\n%s", buf.String())
	}

	if err := deleteOrder(cmd, []string{"999"}); err == nil {
		t.Error("deleting a missing order should fail")
	}
	if err := deleteOrder(cmd, []string{"abc"}); err == nil {
		t.Error("non-numeric id should fail")
	}
	if err := deleteOrder(cmd, []string{strconv.FormatInt(order.ID, 10)}); err != nil {
		t.Fatalf("deleteOrder() error = %v", err)
	}

	buf.Reset()
	if err := listOrders(cmd, nil); err != nil {
		t.Fatalf("listOrders() error = %v", err)
	}
	if strings.TrimSpace(buf.String()) != "no orders" {
		t.Errorf("order not deleted:\n%s", buf.String())
	}
}
