package outline

import "fmt"

// templateOutline builds the deterministic per-type fallback used when
// no model is available or the model's plan fails validation.
func templateOutline(topic, reportType string) *Outline {
	section := func(title, desc string, points ...string) *Node {
		return &Node{Title: title, Description: desc, KeyPoints: points}
	}

	var nodes []*Node
	switch reportType {
	case TypeInsight:
		nodes = []*Node{
			section("Executive Context", fmt.Sprintf("Why %s matters now", topic),
				"Current inflection point", "Who is affected", "Stakes and time horizon"),
			section("Key Findings", "The central observations",
				"Primary finding", "Supporting evidence", "Counter-signals"),
			section("Implications", "What the findings mean for decision makers",
				"Strategic implications", "Operational implications", "Second-order effects"),
			section("Recommendations", "Actions the findings support",
				"Near-term actions", "Longer-term positioning", "What to monitor"),
		}
	case TypeIndustry:
		nodes = []*Node{
			section("Industry Overview", fmt.Sprintf("Structure and scale of %s", topic),
				"Market size and growth", "Segmentation", "Value chain"),
			section("Competitive Landscape", "Who competes and how",
				"Leading players", "Emerging entrants", "Differentiation dynamics"),
			section("Market Drivers", "Forces shaping demand and supply",
				"Demand drivers", "Supply constraints", "Regulatory influence"),
			section("Challenges and Risks", "Headwinds facing the industry",
				"Structural challenges", "Execution risks", "External shocks"),
			section("Outlook", "Where the industry is heading",
				"Growth trajectory", "Consolidation pressure", "Scenarios to watch"),
		}
	case TypeResearch:
		nodes = []*Node{
			section("Background", fmt.Sprintf("Problem context for %s", topic),
				"Problem definition", "Historical development", "Why it remains open"),
			section("State of the Art", "The current research frontier",
				"Leading approaches", "Benchmark results", "Methodological trends"),
			section("Comparative Analysis", "How the approaches trade off",
				"Strengths and weaknesses", "Evaluation criteria", "Reproducibility"),
			section("Open Problems", "What remains unsolved",
				"Known limitations", "Contested claims", "Promising directions"),
		}
	case TypeNewsReport:
		nodes = []*Node{
			section("What Happened", fmt.Sprintf("The core events around %s", topic),
				"Timeline of events", "Key announcements", "Primary sources"),
			section("Key Stakeholders", "Who is involved and their positions",
				"Principal actors", "Stated positions", "Conflicts of interest"),
			section("Immediate Impact", "Consequences already visible",
				"Market reaction", "Industry response", "Public reception"),
			section("What Comes Next", "Expected developments",
				"Pending decisions", "Signals to watch", "Plausible scenarios"),
		}
	default: // comprehensive
		nodes = []*Node{
			section("Background", fmt.Sprintf("Foundations of %s", topic),
				"Definition and scope", "Historical development", "Why it matters"),
			section("Current Landscape", "The present state of play",
				"Leading developments", "Principal actors", "Adoption and maturity"),
			section("Technology and Methods", "How it works",
				"Core mechanisms", "Recent advances", "Practical constraints"),
			section("Market and Economics", "Commercial dimension",
				"Market size and growth", "Investment activity", "Business models"),
			section("Challenges and Risks", "What could go wrong",
				"Technical challenges", "Regulatory exposure", "Competitive threats"),
			section("Outlook", "Where this is heading",
				"Near-term trajectory", "Long-term scenarios", "Open questions"),
		}
	}

	return &Outline{Topic: topic, ReportType: reportType, Nodes: nodes}
}
