package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"syscall"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/daybookhq/daybook/internal/adapter/nats"
	"github.com/daybookhq/daybook/internal/adapter/natskv"
	"github.com/daybookhq/daybook/internal/adapter/postgres"
	"github.com/daybookhq/daybook/internal/config"
	"github.com/daybookhq/daybook/internal/domain/tenant"
	"github.com/daybookhq/daybook/internal/service"
)

// runAdmin dispatches provisioning subcommands. They run in-process against
// the database and the shared cache bucket, not through the HTTP API.
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "create-tenant":
		return runAdminCreateTenant(args[1:])
	case "list-tenants":
		return runAdminListTenants(args[1:])
	case "set-commission":
		return runAdminSetCommission(args[1:])
	case "deactivate":
		return runAdminDeactivate(args[1:])
	case "rotate-keys":
		return runAdminRotateKeys(args[1:])
	case "verify-key":
		return runAdminVerifyKey(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: daybook admin <command> [options]

Commands:
  create-tenant    Provision a tenant and mint its API keys
  list-tenants     List all tenants
  set-commission   Change a tenant's commission rate
  deactivate       Deactivate a tenant and stop its keys resolving
  rotate-keys      Replace a tenant's API keys
  verify-key       Check a pasted secret key and report the owning tenant
  help             Show this help message

Examples:
  daybook admin create-tenant -slug bella -name "Bella Events" -rate 1250 -origin https://bella.example
  daybook admin set-commission -slug bella -rate 1500
  daybook admin rotate-keys -slug bella
  daybook admin list-tenants
`)
}

// adminDeps bundles the services the subcommands drive. The directory is
// wired over the shared KV bucket so key invalidations reach every running
// instance, not just this process.
type adminDeps struct {
	tenants   *service.TenantService
	directory *service.DirectoryService
}

func loadAdminDeps(ctx context.Context) (*adminDeps, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	queue, err := nats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("connect to nats: %w", err)
	}
	cacheKV, err := queue.KeyValue(ctx, cfg.Cache.L2Bucket, cfg.Cache.TenantTTL)
	if err != nil {
		_ = queue.Close()
		pool.Close()
		return nil, nil, fmt.Errorf("cache bucket: %w", err)
	}

	store := postgres.NewStore(pool)
	directory := service.NewDirectoryService(store, natskv.New(cacheKV), cfg.Cache.TenantTTL)

	cleanup := func() {
		_ = queue.Close()
		pool.Close()
	}
	return &adminDeps{
		tenants:   service.NewTenantService(store, directory),
		directory: directory,
	}, cleanup, nil
}

func runAdminCreateTenant(args []string) error {
	fs := flag.NewFlagSet("create-tenant", flag.ContinueOnError)
	slug := fs.String("slug", "", "tenant slug, used in API keys (required)")
	name := fs.String("name", "", "tenant display name (required)")
	rate := fs.Int("rate", 0, "commission rate in basis points, e.g. 1250 for 12.5% (required)")
	origin := fs.String("origin", "", "origin allowed to embed the widget")
	account := fs.String("account", "", "connected gateway account id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *slug == "" {
		return fmt.Errorf("-slug is required")
	}
	if *name == "" {
		return fmt.Errorf("-name is required")
	}
	if *rate == 0 {
		return fmt.Errorf("-rate is required (basis points)")
	}

	ctx := context.Background()
	deps, cleanup, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	t, secretKey, err := deps.tenants.Create(ctx, tenant.CreateRequest{
		Slug:              *slug,
		Name:              *name,
		CommissionRateBps: int32(*rate),
		EmbedOrigin:       *origin,
		GatewayAccountID:  *account,
	})
	if err != nil {
		return fmt.Errorf("create tenant: %w", err)
	}

	fmt.Printf("Tenant created: %s (id=%s, rate=%dbps)\n", t.Slug, t.ID, t.CommissionRateBps)
	fmt.Printf("  public key: %s\n", t.PublicKey)
	fmt.Printf("  secret key: %s\n", secretKey)
	fmt.Fprintln(os.Stderr, "Store the secret key now; it is shown only once.")
	return nil
}

func runAdminListTenants(args []string) error {
	fs := flag.NewFlagSet("list-tenants", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	deps, cleanup, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	tenants, err := deps.tenants.List(ctx)
	if err != nil {
		return fmt.Errorf("list tenants: %w", err)
	}

	if len(tenants) == 0 {
		fmt.Println("No tenants found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSLUG\tNAME\tRATE_BPS\tONBOARDED\tACTIVE\tCREATED")
	for i := range tenants {
		t := &tenants[i]
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%t\t%t\t%s\n",
			t.ID, t.Slug, t.Name, t.CommissionRateBps, t.OnboardingComplete, t.Active,
			t.CreatedAt.Format("2006-01-02"))
	}
	return w.Flush()
}

func runAdminSetCommission(args []string) error {
	fs := flag.NewFlagSet("set-commission", flag.ContinueOnError)
	slug := fs.String("slug", "", "tenant slug (required)")
	rate := fs.Int("rate", 0, "new commission rate in basis points (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *slug == "" {
		return fmt.Errorf("-slug is required")
	}
	if *rate == 0 {
		return fmt.Errorf("-rate is required (basis points)")
	}

	ctx := context.Background()
	deps, cleanup, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	rateBps := int32(*rate)
	t, err := deps.tenants.Update(ctx, *slug, tenant.UpdateRequest{CommissionRateBps: &rateBps})
	if err != nil {
		return fmt.Errorf("set commission: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Commission for %s set to %dbps\n", t.Slug, t.CommissionRateBps)
	return nil
}

func runAdminDeactivate(args []string) error {
	fs := flag.NewFlagSet("deactivate", flag.ContinueOnError)
	slug := fs.String("slug", "", "tenant slug (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *slug == "" {
		return fmt.Errorf("-slug is required")
	}

	ctx := context.Background()
	deps, cleanup, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	inactive := false
	t, err := deps.tenants.Update(ctx, *slug, tenant.UpdateRequest{Active: &inactive})
	if err != nil {
		return fmt.Errorf("deactivate tenant: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Tenant %s deactivated; its keys no longer resolve\n", t.Slug)
	return nil
}

func runAdminRotateKeys(args []string) error {
	fs := flag.NewFlagSet("rotate-keys", flag.ContinueOnError)
	slug := fs.String("slug", "", "tenant slug (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *slug == "" {
		return fmt.Errorf("-slug is required")
	}

	ctx := context.Background()
	deps, cleanup, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	publicKey, secretKey, err := deps.tenants.RotateKeys(ctx, *slug)
	if err != nil {
		return fmt.Errorf("rotate keys: %w", err)
	}

	fmt.Printf("Keys rotated for %s\n", *slug)
	fmt.Printf("  public key: %s\n", publicKey)
	fmt.Printf("  secret key: %s\n", secretKey)
	fmt.Fprintln(os.Stderr, "Store the secret key now; it is shown only once. The old keys are dead.")
	return nil
}

func runAdminVerifyKey(args []string) error {
	fs := flag.NewFlagSet("verify-key", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	key, err := promptSecret("Secret key: ")
	if err != nil {
		return fmt.Errorf("read key: %w", err)
	}

	ctx := context.Background()
	deps, cleanup, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	tc, err := deps.directory.VerifySecret(ctx, key)
	if err != nil {
		return fmt.Errorf("key rejected: %w", err)
	}

	fmt.Printf("Key is valid for tenant %s (id=%s, rate=%dbps, onboarded=%t)\n",
		tc.Slug, tc.ID, tc.CommissionRateBps, tc.OnboardingComplete)
	return nil
}

// promptSecret reads a line from the terminal without echoing, keeping pasted
// keys out of shell history and scrollback.
func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // int conversion needed on some platforms
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
