// probe opens a site's home page and reports which configured selectors still match.
// With --search it also types a term and prints the first suggestion's package size.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"cart-autofill/adapters"
	"cart-autofill/config"
	"cart-autofill/extractor"
	"cart-autofill/internal/app"
	"cart-autofill/internal/types"
	"cart-autofill/quantity"
	"cart-autofill/utils"

	"github.com/PuerkitoBio/goquery"
	"github.com/urfave/cli/v2"
)

func main() {
	cliApp := &cli.App{
		Name:  "probe",
		Usage: "Check a site's selectors against the live page",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Config file"},
			&cli.StringFlag{Name: "site", Aliases: []string{"s"}, Usage: "Target site (migros, coop)", Required: true},
			&cli.StringFlag{Name: "search", Usage: "Product name to type into the search box"},
			&cli.BoolFlag{Name: "headless", Value: true, Usage: "Run the browser without a window"},
		},
		Action: probe,
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func probe(c *cli.Context) error {
	logger := app.NewLogger(true)

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	cfg.UseHeadlessBrowser = c.Bool("headless")

	site, err := types.ParseSite(c.String("site"))
	if err != nil {
		return err
	}
	profile, ok := cfg.Sites[site]
	if !ok {
		return fmt.Errorf("no profile configured for %s", site)
	}

	browser := utils.NewBrowserClient(cfg, logger)
	defer browser.Close()

	ctx := c.Context
	tab, err := browser.Create(ctx, profile.HomeURL)
	if err != nil {
		return err
	}
	if _, err := browser.WaitForLoad(ctx, tab.ID, cfg.TabLoadTimeout); err != nil {
		logger.Warnf("Page did not finish loading: %v", err)
	}
	page, ok := browser.Page(tab.ID)
	if !ok {
		return fmt.Errorf("tab %d disappeared", tab.ID)
	}

	fmt.Printf("=== %s (%s) ===\n", site, profile.HomeURL)
	if err := reportSelectors(ctx, page, "Search inputs", profile.SearchInputs); err != nil {
		return err
	}

	term := strings.TrimSpace(c.String("search"))
	if term == "" {
		return nil
	}
	return reportSearch(ctx, page, profile, cfg, term)
}

// reportSelectors prints how many elements of the current document each selector matches
func reportSelectors(ctx context.Context, page *utils.ChromedpPage, title string, selectors []string) error {
	html, err := page.OuterHTML(ctx, "html")
	if err != nil {
		return fmt.Errorf("failed to read page: %w", err)
	}
	return printMatches(html, title, selectors)
}

// printMatches parses html and prints the match count of each selector inside it
func printMatches(html, title string, selectors []string) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("failed to parse HTML: %w", err)
	}

	fmt.Printf("%s:\n", title)
	for i, selector := range selectors {
		if selector == "" {
			continue
		}
		fmt.Printf("  %d: %-60s %d match(es)\n", i+1, selector, doc.Find(selector).Length())
	}
	return nil
}

func reportSearch(ctx context.Context, page *utils.ChromedpPage, profile types.SiteProfile, cfg *types.Config, term string) error {
	var input string
	for _, selector := range profile.SearchInputs {
		if found, err := page.Exists(ctx, selector); err == nil && found {
			input = selector
			break
		}
	}
	if input == "" {
		return fmt.Errorf("no search input matched")
	}

	fmt.Printf("\nSearching %q via %s\n", term, input)
	if err := page.SetValue(ctx, input, term); err != nil {
		return err
	}

	candidate := profile.CandidateSelector()
	if err := adapters.WaitFor(ctx, page, candidate, profile.PollInterval, profile.PollAttempts); err != nil {
		fmt.Printf("No suggestion appeared for %s\n", candidate)
		return nil
	}
	if err := reportSelectors(ctx, page, "Suggestions", []string{candidate}); err != nil {
		return err
	}

	// controls are counted inside the first card, the only one the drivers touch
	card, err := page.OuterHTML(ctx, candidate)
	if err != nil {
		return err
	}
	if err := printMatches(card, "First card controls", []string{
		profile.QuantityInput,
		profile.IncrementButton,
		profile.AddToCart,
	}); err != nil {
		return err
	}

	size := extractor.New(profile.PackageSizeLabels, quantity.NewTable(cfg.Units)).ExtractHTML(card)
	if size == nil {
		fmt.Println("Package size: not found")
		return nil
	}
	fmt.Printf("Package size: %g %s\n", size.AmountInBaseUnits, size.BaseUnit)
	return nil
}
