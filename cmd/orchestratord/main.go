package main

import (
	"context"
	"fmt"
	"log"

	"github.com/dealroom/orchestrator/internal/agentcore"
	"github.com/dealroom/orchestrator/internal/bus"
	"github.com/dealroom/orchestrator/internal/config"
	"github.com/dealroom/orchestrator/internal/dd"
	"github.com/dealroom/orchestrator/internal/domain"
	"github.com/dealroom/orchestrator/internal/ledger"
	"github.com/dealroom/orchestrator/internal/llm/gateway"
	"github.com/dealroom/orchestrator/internal/memory"
	"github.com/dealroom/orchestrator/internal/roundtable"
	"github.com/dealroom/orchestrator/internal/scheduler"
	"github.com/dealroom/orchestrator/internal/session"
	"github.com/dealroom/orchestrator/internal/tool"
	"github.com/dealroom/orchestrator/internal/web"
)

func main() {
	config.LoadEnv()
	settings := config.Load()

	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║        Pocket-Omega Orchestrator     ║")
	fmt.Println("║   DD memos + Roundtable trading      ║")
	fmt.Println("╚══════════════════════════════════════╝")

	gwConfig, err := gateway.NewConfigFromEnv()
	if err != nil {
		log.Fatalf("LLM gateway config: %v", err)
	}
	llmClient, err := gateway.NewClient(gwConfig)
	if err != nil {
		log.Fatalf("LLM gateway client: %v", err)
	}
	fmt.Printf("LLM: %s @ %s\n", settings.LLMModel, settings.LLMGatewayURL)

	memStore := memory.NewStore()
	reflector := memory.NewReflector(memStore, llmClient)

	var priceSource ledger.PriceSource
	if settings.FinancialDataURL != "" {
		priceSource = ledger.NewHTTPPriceSource(settings.FinancialDataURL)
	} else {
		priceSource = ledger.FixedPriceSource{Price: 50000}
		log.Printf("FINANCIAL_DATA_URL unset, ledger will mark every position at a fixed price")
	}
	ledgerBook := ledger.New(priceSource, reflector)

	decisionLimits := tool.Limits{MaxLeverage: settings.MaxLeverage, MaxPositionPercent: settings.MaxPositionPercent}
	registry := tool.NewRegistry()
	if err := tool.RegisterDecisionTools(registry, ledgerBook, decisionLimits); err != nil {
		log.Fatalf("register decision tools: %v", err)
	}
	registerDataSourceTools(registry, settings)
	if err := registry.InitAll(context.Background()); err != nil {
		log.Fatalf("init tools: %v", err)
	}
	defer registry.CloseAll()
	fmt.Printf("Tools: %d registered\n", len(registry.List()))

	sessionStore := session.NewStore(settings.SessionTTL)
	defer sessionStore.Close()

	analyzer := dd.NewLLMAnalyzer(llmClient)

	tradingBus := bus.New()
	tradingRoster := buildTradingRoster(llmClient, registry)
	cycle := func(ctx context.Context) (bool, error) {
		engine := roundtable.New(tradingBus, tradingRoster, registry, ledgerBook, settings.Symbol, roundtable.ModeTrading)
		engine.Memory = memStore
		engine.MaxLeverage = settings.MaxLeverage
		engine.MaxPositionPercent = settings.MaxPositionPercent
		engine.MinConfidence = float64(settings.MinConfidence) / 100.0
		result, err := engine.Run(ctx)
		if err != nil {
			return false, err
		}
		return result.Signal != nil, nil
	}
	sched := scheduler.New(cycle, scheduler.WithInterval(settings.SchedulerInterval))
	sched.Start()
	defer sched.Stop()
	fmt.Printf("Scheduler: every %v, symbol %s\n", settings.SchedulerInterval, settings.Symbol)

	rtBuilder := func(ctx context.Context, mode roundtable.Mode, cfg web.SessionConfig) (*roundtable.Engine, error) {
		seatedRoster := buildAnalysisRoster(llmClient, registry, cfg)
		engine := roundtable.New(bus.New(), seatedRoster, registry, ledgerBook, settings.Symbol, mode)
		engine.Memory = memStore
		engine.MaxLeverage = settings.MaxLeverage
		engine.MaxPositionPercent = settings.MaxPositionPercent
		engine.MinConfidence = float64(settings.MinConfidence) / 100.0
		return engine, nil
	}

	sessionHandler := web.NewSessionHandler(sessionStore, analyzer, rtBuilder)
	healthInfo := web.HealthInfo{
		LLMModel:      settings.LLMModel,
		ToolCount:     len(registry.List()),
		SessionCount:  sessionStore.Count,
		NextScheduled: sched.NextRun,
	}
	server := web.NewServer(sessionHandler, healthInfo)

	if err := server.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// registerDataSourceTools wires the two external data feeds spec.md §6
// names (WEB_SEARCH_URL, FINANCIAL_DATA_URL) as MCP-shaped remote tools,
// the same NewRemoteTool + mcp/tools/{name} routing internal/tool/remote.go
// uses for every other externally-hosted tool.
func registerDataSourceTools(r *tool.Registry, settings config.Settings) {
	if settings.WebSearchURL != "" {
		schema := tool.BuildSchema(tool.SchemaParam{Name: "query", Type: "string", Description: "search query", Required: true})
		r.Register(tool.NewRemoteTool("web_search", "Search the web for current information", schema,
			tool.RemoteDescriptor{ServerURL: settings.WebSearchURL, RemoteName: "web_search"}))
		fmt.Println("Data source: web_search enabled")
	}
	if settings.FinancialDataURL != "" {
		schema := tool.BuildSchema(tool.SchemaParam{Name: "symbol", Type: "string", Description: "trading pair or ticker", Required: true})
		r.Register(tool.NewRemoteTool("financial_data", "Fetch market/financial data for a symbol", schema,
			tool.RemoteDescriptor{ServerURL: settings.FinancialDataURL, RemoteName: "financial_data"}))
		fmt.Println("Data source: financial_data enabled")
	}
}

// buildTradingRoster seats the fixed roster the scheduler's cycle function
// drives every interval: two analysts, a risk assessor, and a leader
// carrying the decision tools.
func buildTradingRoster(llmClient *gateway.Client, registry *tool.Registry) roundtable.Roster {
	decisionTools := []string{"open_long", "open_short", "close_position", "hold"}
	return roundtable.Roster{
		Analysts: []*agentcore.Agent{
			agentcore.New(domain.AgentConfig{Name: "technical-analyst", Role: "You analyze price action and technical indicators."}, llmClient, registry),
			agentcore.New(domain.AgentConfig{Name: "fundamental-analyst", Role: "You analyze on-chain and macro fundamentals."}, llmClient, registry),
		},
		RiskAssessor: agentcore.New(domain.AgentConfig{Name: "risk-assessor", Role: "You review proposed trades for risk before execution."}, llmClient, registry),
		Leader:       agentcore.New(domain.AgentConfig{Name: "trade-leader", Role: "You synthesize the group's analysis and decide the trade.", ToolNames: decisionTools}, llmClient, registry),
	}
}

// buildAnalysisRoster seats a roster for an ad hoc analysis-mode meeting,
// honoring cfg.SelectedAgents when the caller named specific participants.
func buildAnalysisRoster(llmClient *gateway.Client, registry *tool.Registry, cfg web.SessionConfig) roundtable.Roster {
	names := cfg.SelectedAgents
	if len(names) == 0 {
		names = []string{"technical-analyst", "fundamental-analyst"}
	}
	analysts := make([]*agentcore.Agent, len(names))
	for i, n := range names {
		analysts[i] = agentcore.New(domain.AgentConfig{Name: n, Role: "You analyze the opportunity from your assigned perspective."}, llmClient, registry)
	}
	return roundtable.Roster{
		Analysts:     analysts,
		RiskAssessor: agentcore.New(domain.AgentConfig{Name: "risk-assessor", Role: "You review the group's findings for risk."}, llmClient, registry),
		Leader:       agentcore.New(domain.AgentConfig{Name: "session-leader", Role: "You synthesize the group's analysis into a conclusion."}, llmClient, registry),
	}
}
