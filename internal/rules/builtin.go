package rules

// BuiltinLanguages are the languages the reference rule set is registered for.
var BuiltinLanguages = []string{"javascript", "typescript"}

type builtinTemplate struct {
	id            string
	name          string
	description   string
	pattern       string
	severity      Severity
	category      Category
	customMessage string
	fix           string
}

var builtinTemplates = []builtinTemplate{
	{
		id:          "xss-inner-html",
		name:        "Unsafe innerHTML assignment",
		description: "Assigning to innerHTML or outerHTML parses the value as markup.",
		pattern:     `\.(?:inner|outer)HTML\s*=`,
		severity:    SeverityHigh,
		category:    CategoryXSS,
		customMessage: "Untrusted data written to innerHTML/outerHTML can execute attacker-controlled " +
			"script in the page.",
		fix: "Use textContent for plain text, or sanitize the markup (e.g. DOMPurify) before assignment.",
	},
	{
		id:          "xss-document-write",
		name:        "document.write sink",
		description: "document.write injects raw markup into the document.",
		pattern:     `document\.write(?:ln)?\s*\(`,
		severity:    SeverityHigh,
		category:    CategoryXSS,
		fix:         "Build DOM nodes with createElement/textContent instead of document.write.",
	},
	{
		id:          "xss-insert-adjacent-html",
		name:        "insertAdjacentHTML sink",
		description: "insertAdjacentHTML parses its argument as markup.",
		pattern:     `insertAdjacentHTML\s*\(`,
		severity:    SeverityMedium,
		category:    CategoryXSS,
		fix:         "Use insertAdjacentText or sanitize the markup before insertion.",
	},
	{
		id:          "xss-dangerously-set-inner-html",
		name:        "React dangerouslySetInnerHTML",
		description: "dangerouslySetInnerHTML bypasses React's output escaping.",
		pattern:     `dangerouslySetInnerHTML`,
		severity:    SeverityMedium,
		category:    CategoryXSS,
		fix:         "Render text through JSX, or sanitize the HTML before passing it to dangerouslySetInnerHTML.",
	},
	{
		id:            "injection-eval",
		name:          "Dynamic code execution with eval",
		description:   "eval executes its argument as code.",
		pattern:       `\beval\s*\(`,
		severity:      SeverityCritical,
		category:      CategoryInjection,
		customMessage: "eval() executes arbitrary code; any user-influenced input becomes code injection.",
		fix:           "Remove eval. Parse data with JSON.parse or dispatch through an explicit lookup table.",
	},
	{
		id:          "injection-function-constructor",
		name:        "Function constructor",
		description: "new Function compiles a string into executable code.",
		pattern:     `new\s+Function\s*\(`,
		severity:    SeverityHigh,
		category:    CategoryInjection,
		fix:         "Replace the Function constructor with a statically defined function.",
	},
	{
		id:          "injection-string-timer",
		name:        "String passed to setTimeout/setInterval",
		description: "Timers given a string evaluate it as code.",
		pattern:     "set(?:Timeout|Interval)\\s*\\(\\s*[\"'`]",
		severity:    SeverityMedium,
		category:    CategoryInjection,
		fix:         "Pass a function reference to setTimeout/setInterval instead of a string.",
	},
	{
		id:          "injection-child-process",
		name:        "Shell command built from concatenation",
		description: "exec/execSync with a concatenated command string enables command injection.",
		pattern:     `\bexec(?:Sync)?\s*\([^)]*\+`,
		severity:    SeverityCritical,
		category:    CategoryInjection,
		fix:         "Use execFile/spawn with an argument array and validate every argument.",
	},
	{
		id:          "secrets-credential-literal",
		name:        "Hard-coded credential",
		description: "A credential-shaped identifier is assigned a string literal.",
		pattern:     `(?i)\b(?:password|passwd|pwd|secret|api[_-]?key|access[_-]?token|auth[_-]?token)\b\s*[:=]\s*["'][^"'\s]{8,}["']`,
		severity:    SeverityHigh,
		category:    CategorySecrets,
		customMessage: "A credential appears to be hard-coded in source; anyone with access to the code " +
			"or bundle can read it.",
		fix: "Load the secret from the environment or a secret manager and rotate the exposed value.",
	},
	{
		id:          "secrets-aws-access-key",
		name:        "AWS access key id",
		description: "Literal AWS access key id.",
		pattern:     `\b(?:AKIA|ASIA)[0-9A-Z]{16}\b`,
		severity:    SeverityCritical,
		category:    CategorySecrets,
		fix:         "Revoke the key in IAM and inject credentials at runtime instead.",
	},
	{
		id:          "secrets-private-key",
		name:        "Embedded private key",
		description: "PEM private key material in source.",
		pattern:     `-----BEGIN [A-Z ]*PRIVATE KEY-----`,
		severity:    SeverityCritical,
		category:    CategorySecrets,
		fix:         "Remove the key from the repository, rotate it, and mount it from a secret store.",
	},
}

// Builtins returns the reference rule set, one copy per builtin language.
func Builtins() []Rule {
	out := make([]Rule, 0, len(builtinTemplates)*len(BuiltinLanguages))
	for _, lang := range BuiltinLanguages {
		for _, t := range builtinTemplates {
			out = append(out, Rule{
				ID:            lang + "-" + t.id,
				Name:          t.name,
				Description:   t.description,
				Language:      lang,
				Pattern:       t.pattern,
				Severity:      t.severity,
				Category:      t.category,
				CustomMessage: t.customMessage,
				FixSuggestion: t.fix,
				IsActive:      true,
			})
		}
	}
	return out
}
