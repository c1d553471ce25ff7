// Package dossier provides a research report engine with streaming progress.
//
// Dossier turns a topic into a long-form, structured analytical report. It
// fans search queries out across web, academic, and news providers in
// parallel, scores and filters what comes back, iterates a quality-gated
// research loop until a threshold or budget is hit, then generates an
// outline and per-section content with bounded concurrency. Progress is
// streamed to the caller as ordered JSON-RPC 2.0 notifications carrying
// status, model usage, and analysis results, ending with the final report.
//
// # Quick Start
//
// Install Dossier:
//
//	go install github.com/kadirpekel/dossier/cmd/dossier@latest
//
// Create a configuration:
//
//	llm:
//	  provider: "openai"
//	  model: "gpt-4o-mini"
//	  api_key: "${OPENAI_API_KEY}"
//
//	providers:
//	  tavily:
//	    category: "web"
//	    api_key: "${TAVILY_API_KEY}"
//	  arxiv:
//	    category: "academic"
//
// Start the server:
//
//	dossier serve --config dossier.yaml
//
// Or run a report from the terminal:
//
//	dossier research "solid-state battery supply chain" --type industry
//
// # Key Packages
//
//	import (
//	    "github.com/kadirpekel/dossier/pkg/research"
//	    "github.com/kadirpekel/dossier/pkg/search"
//	    "github.com/kadirpekel/dossier/pkg/events"
//	    "github.com/kadirpekel/dossier/pkg/config"
//	)
//
// # Architecture
//
//	Client → JSON-RPC/SSE → Session → Iterative Controller
//	         → Query Generator → Search Orchestrator → Analyzer (loop)
//	         → Outline Builder → Section Writers (bounded pool)
//	         → Summary Writer → Report Assembler → final artifact
//
// Every pipeline stage publishes to a per-session event bus; the transport
// renders the bus as server-sent events. Every LLM-backed stage carries a
// deterministic fallback so the pipeline keeps moving when the model
// backend is down.
//
// # Alpha Status
//
// Dossier is currently in alpha development. APIs may change, and some
// features are experimental. We welcome feedback and contributions!
package dossier
