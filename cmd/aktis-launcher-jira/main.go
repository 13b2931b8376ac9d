package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"regexp"
	"strings"

	"aktis-launcher-jira/internal/common"
	"aktis-launcher-jira/internal/handlers"
	"aktis-launcher-jira/internal/services"
)

const (
	pluginName    = "aktis-launcher-jira"
	pluginVersion = "1.0.0"
)

// issueCommandPattern splits "KEY field=value" edit commands.
var issueCommandPattern = regexp.MustCompile(`(.+) (.+)=(.*)`)

func main() {
	var (
		configPath     = flag.String("config", "", "Path to configuration file")
		quiet          = flag.Bool("quiet", false, "Suppress banner output")
		version        = flag.Bool("version", false, "Show version information")
		help           = flag.Bool("help", false, "Show help message")
		validateConfig = flag.Bool("validate", false, "Validate configuration file and exit")

		my          = flag.Bool("my", false, "List unresolved issues assigned to you")
		recent      = flag.Bool("recent", false, "List recently touched issues")
		newIssue    = flag.Bool("new", false, "Prompt for a new issue in the active project")
		setProject  = flag.String("set-project", "", "Set the active project")
		issue       = flag.String("issue", "", "Show an issue, or 'KEY field=value' to edit")
		update      = flag.Bool("update", false, "Apply the -issue field change instead of prompting")
		create      = flag.String("create", "", "Create an issue from 'TYPE:summary' and the clipboard")
		updateCache = flag.String("update-cache", "", "Refresh the issue cache for a project (background mode)")
		total       = flag.Int("total", 0, "Total issue count for -update-cache")
	)
	flag.Parse()

	if *version {
		fmt.Printf("%s v%s (build: %s)\n", pluginName, common.GetVersion(), common.GetBuild())
		os.Exit(0)
	}

	if *help {
		showHelp()
		os.Exit(0)
	}

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *validateConfig {
		if err := cfg.Validate(); err != nil {
			common.PrintError(fmt.Sprintf("Configuration is invalid: %v", err))
			os.Exit(1)
		}
		common.PrintSuccess("Configuration is valid")
		os.Exit(0)
	}

	if err := common.InitLogger(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger := common.GetLogger()

	logger.Debug().
		Str("version", common.GetVersion()).
		Str("build", common.GetBuild()).
		Str("args", strings.Join(os.Args[1:], " ")).
		Msg("Launcher invoked")

	// Each command opens the store on first use. bbolt takes an
	// exclusive file lock, so an eager open here would collide with the
	// background refresher writing the cache.
	cmds := handlers.NewCommands(cfg, services.NewKeychain(), logger)
	defer cmds.Close()
	ctx := context.Background()
	query := strings.TrimSpace(flag.Arg(0))

	// Background refresh mode runs detached with stdout unused, so the
	// startup banner is safe to show there.
	if *updateCache != "" {
		if !*quiet {
			common.PrintBanner(pluginName, cfg.Launcher.Environment, "Cache Refresh", common.GetLogFilePath())
		}
		if err := cmds.RefreshCache(ctx, *updateCache, *total); err != nil {
			logger.Error().Err(err).Str("project", *updateCache).Msg("Cache refresh failed")
			common.PrintError(fmt.Sprintf("Cache refresh failed: %v", err))
			os.Exit(1)
		}
		if !*quiet {
			common.PrintShutdownBanner(pluginName)
		}
		return
	}

	switch {
	case *setProject != "":
		if err := cmds.SetProject(ctx, *setProject); err != nil {
			logger.Error().Err(err).Msg("Failed to switch project")
			os.Exit(1)
		}
		return // Suppress feedback

	case *issue != "":
		runIssueCommand(ctx, cmds, *issue, *update)

	case *my:
		reportErr(cmds, cmds.MyIssues(ctx, query))

	case *recent:
		reportErr(cmds, cmds.Recent(ctx, query))

	case *newIssue:
		reportErr(cmds, cmds.NewIssuePrompt(query))

	case *create != "":
		message, err := cmds.CreateIssue(ctx, *create)
		if err != nil {
			logger.Error().Err(err).Msg("Issue creation failed")
			fmt.Printf("Error creating issue: %v\n", err)
			return
		}
		fmt.Println(message)
		return

	default:
		reportErr(cmds, cmds.Browse(ctx, query))
	}

	sendFeedback(cmds)
}

func runIssueCommand(ctx context.Context, cmds *handlers.Commands, arg string, update bool) {
	logger := common.GetLogger()

	if m := issueCommandPattern.FindStringSubmatch(arg); m != nil {
		issueKey, field, value := m[1], m[2], m[3]

		if update {
			message, err := cmds.UpdateIssue(ctx, issueKey, field, value)
			if err != nil {
				logger.Error().Err(err).Str("issue", issueKey).Str("field", field).Msg("Update failed")
				fmt.Printf("Error updating %s: %v\n", issueKey, err)
				return
			}
			fmt.Println(message)
			return // Suppress feedback
		}

		reportErr(cmds, cmds.EditIssue(ctx, issueKey, field, value))
		sendFeedback(cmds)
		return
	}

	// Plain issue key, possibly with trailing input
	issueKey := strings.SplitN(strings.TrimSpace(arg), " ", 2)[0]
	reportErr(cmds, cmds.ShowIssue(ctx, issueKey))
	sendFeedback(cmds)
}

// reportErr converts a command error into a warning item so the host
// launcher shows something actionable instead of nothing.
func reportErr(cmds *handlers.Commands, err error) {
	if err == nil {
		return
	}
	common.GetLogger().Error().Err(err).Msg("Command failed")
	cmds.Feedback().AddWarning(err.Error())
}

func sendFeedback(cmds *handlers.Commands) {
	data, err := cmds.Feedback().JSON()
	if err != nil {
		common.GetLogger().Error().Err(err).Msg("Failed to encode feedback")
		os.Exit(1)
	}
	fmt.Println(string(data))
}

func showHelp() {
	fmt.Printf("%s v%s - Jira Launcher Plugin\n\n", pluginName, pluginVersion)
	fmt.Println("Usage:")
	fmt.Printf("  %s [flags] [query]\n\n", os.Args[0])
	fmt.Println("Flags:")
	fmt.Println("  -my                 List unresolved issues assigned to you")
	fmt.Println("  -recent             List recently touched issues")
	fmt.Println("  -new                Prompt for a new issue in the active project")
	fmt.Println("  -set-project KEY    Set (or clear) the active project")
	fmt.Println("  -issue ARG          Show an issue, or 'KEY field=value' to edit")
	fmt.Println("  -update             Apply the -issue field change instead of prompting")
	fmt.Println("  -create ARG         Create an issue from 'TYPE:summary' and the clipboard")
	fmt.Println("  -config string      Configuration file path")
	fmt.Println("  -quiet              Suppress banner output")
	fmt.Println("  -version            Show version information")
	fmt.Println("  -validate           Validate configuration file and exit")
	fmt.Println("\nExamples:")
	fmt.Printf("  %s                                  # Browse projects or the active project\n", os.Args[0])
	fmt.Printf("  %s -my crash                        # Your unresolved issues matching 'crash'\n", os.Args[0])
	fmt.Printf("  %s -issue 'DEMO-1'                  # Show issue DEMO-1\n", os.Args[0])
	fmt.Printf("  %s -issue 'DEMO-1 comment=done' -update\n", os.Args[0])
	fmt.Println("\nCredentials: the Jira password is read from the OS keychain under")
	fmt.Printf("service '%s' and the configured username.\n", pluginName)
}
