package query

import (
	"regexp"
	"strings"

	"llmc/internal/config"
)

// fencedCodePattern detects a Markdown fenced code block, grounded on
// the teacher's internal/retrieval/sparse.go regex-extraction idiom
// (compile once at package init, match against raw query text).
var fencedCodePattern = regexp.MustCompile("```[\\s\\S]*?```")

// defaultCodeKeywords are generic implementation-language vocabulary:
// their presence nudges a query toward CategoryCode even without a
// fenced block or a structural token.
var defaultCodeKeywords = []string{
	"function", "method", "class", "struct", "interface", "variable",
	"import", "package", "compile", "stack trace", "exception", "panic",
	"nil pointer", "goroutine", "api", "endpoint", "refactor", "bug",
}

// defaultDomainKeywords are everyday business vocabulary that signals a
// docs/domain-flavored query without being specific enough to count as
// an erp_keyword (which comes from routing.erp_keywords in config).
var defaultDomainKeywords = []string{
	"customer", "policy", "workflow", "approval", "report", "dashboard",
	"onboarding", "compliance", "audit",
}

// Classifier turns a query's boolean signals into a weighted category
// verdict, cheaply enough to run on every query before retrieval.
type Classifier struct {
	cfg            config.RoutingConfig
	codeStructRe   *regexp.Regexp
	codeKeywords   []string
	domainKeywords []string
}

func NewClassifier(cfg config.RoutingConfig) *Classifier {
	re := regexp.MustCompile(`\b(func|class|struct|interface|def|impl)\b`)
	if cfg.CodeStructRegex != "" {
		if compiled, err := regexp.Compile(cfg.CodeStructRegex); err == nil {
			re = compiled
		}
	}
	return &Classifier{
		cfg:            cfg,
		codeStructRe:   re,
		codeKeywords:   defaultCodeKeywords,
		domainKeywords: defaultDomainKeywords,
	}
}

// signalWeight ranks each boolean signal: tool-context override >
// fenced code > code structure > domain/ERP identifier > code keyword
// > domain keyword > docs default. On each side (code, domain) the
// strongest signal sets the weight; when both sides fire, Classify
// settles the conflict with ConflictMargin and PreferCodeOnConflict
// rather than by the larger weight alone.
const (
	weightToolContext  = 1.0
	weightFencedCode   = 0.9
	weightCodeStruct   = 0.8
	weightERPKeyword   = 0.7
	weightCodeKeyword  = 0.6
	weightDomainWord   = 0.4
	weightDocsDefault  = 0.1
)

// Classify computes the boolean signals for query and resolves them to
// a Category per the priority order, tie-breaking a code/domain
// conflict by cfg.ConflictMargin.
func (c *Classifier) Classify(queryText string, toolContext string) Classification {
	sig := c.computeSignals(queryText, toolContext)

	if sig.ToolContextOverride != "" {
		return Classification{
			Category: Category(sig.ToolContextOverride),
			Reason:   "tool_context_override",
			Score:    weightToolContext,
			Signals:  sig,
		}
	}

	codeWeight, codeReason := 0.0, ""
	if sig.FencedCodePresent {
		codeWeight, codeReason = weightFencedCode, "fenced_code_present"
	} else if sig.CodeStructureRegex {
		codeWeight, codeReason = weightCodeStruct, "code_structure_regex"
	} else if sig.CodeKeyword {
		codeWeight, codeReason = weightCodeKeyword, "code_keyword"
	}

	domainWeight, domainReason := 0.0, ""
	if sig.ERPKeyword {
		domainWeight, domainReason = weightERPKeyword, "erp_keyword"
	} else if sig.DomainKeyword {
		domainWeight, domainReason = weightDomainWord, "domain_keyword"
	}

	switch {
	case codeWeight == 0 && domainWeight == 0:
		return Classification{Category: CategoryDocs, Reason: "docs_default", Score: weightDocsDefault, Signals: sig}
	case domainWeight == 0:
		return Classification{Category: CategoryCode, Reason: codeReason, Score: codeWeight, Signals: sig}
	case codeWeight == 0:
		return Classification{Category: CategoryDomain, Reason: domainReason, Score: domainWeight, Signals: sig}
	default:
		// Both categories fired: a conflict. Favor code unless domain
		// wins by more than the configured margin.
		margin := c.cfg.ConflictMargin
		if domainWeight-codeWeight > margin {
			return Classification{Category: CategoryDomain, Reason: domainReason + "_over_" + codeReason, Score: domainWeight, Signals: sig}
		}
		if !c.cfg.PreferCodeOnConflict && codeWeight-domainWeight <= margin {
			return Classification{Category: CategoryDomain, Reason: domainReason + "_over_" + codeReason, Score: domainWeight, Signals: sig}
		}
		return Classification{Category: CategoryCode, Reason: codeReason + "_over_" + domainReason, Score: codeWeight, Signals: sig}
	}
}

func (c *Classifier) computeSignals(queryText, toolContext string) Signals {
	lower := strings.ToLower(queryText)
	sig := Signals{
		ToolContextOverride: toolContext,
		FencedCodePresent:   fencedCodePattern.MatchString(queryText),
		CodeStructureRegex:  c.codeStructRe.MatchString(queryText),
	}
	for _, kw := range c.cfg.ERPKeywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			sig.ERPKeyword = true
			break
		}
	}
	for _, kw := range c.codeKeywords {
		if strings.Contains(lower, kw) {
			sig.CodeKeyword = true
			break
		}
	}
	for _, kw := range c.domainKeywords {
		if strings.Contains(lower, kw) {
			sig.DomainKeyword = true
			break
		}
	}
	return sig
}
