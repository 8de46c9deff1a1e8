package catalog

// Default returns the built-in catalog used when no catalog file is configured.
func Default() *Catalog {
	c, err := New(defaultTemplates(), defaultSelectors())
	if err != nil {
		panic("catalog: invalid built-in catalog: " + err.Error())
	}
	c.source = "builtin"
	return c
}

func defaultTemplates() []TaskTemplate {
	return []TaskTemplate{
		{
			ID:          "email_compose",
			Category:    "email",
			Name:        "Compose Email",
			Keywords:    []string{"email", "send", "compose", "mail", "message", "write"},
			Description: "Compose and send an email",
			Steps: []StepSpec{
				{Order: 1, Action: ActionNavigate, Target: "https://mail.google.com", Description: "Navigate to Gmail"},
				{Order: 2, Action: ActionClick, Target: "compose_button", Description: "Click compose button"},
				{Order: 3, Action: ActionType, Target: "recipient_field", Value: "{email}",
					Parameters: map[string]ValueKind{"email": KindEmail}, Description: "Enter recipient email"},
				{Order: 4, Action: ActionType, Target: "subject_field", Value: "{subject}",
					Parameters: map[string]ValueKind{"subject": KindSubject}, Description: "Enter subject"},
			},
		},
		{
			ID:          "web_search",
			Category:    "search",
			Name:        "Search Web",
			Keywords:    []string{"search", "google", "find", "look", "query"},
			Description: "Search for information on the web",
			Steps: []StepSpec{
				{Order: 1, Action: ActionNavigate, Target: "https://www.google.com", Description: "Navigate to Google"},
				{Order: 2, Action: ActionType, Target: "search_box", Value: "{query}",
					Parameters: map[string]ValueKind{"query": KindQuery}, Description: "Enter search query"},
			},
		},
		{
			ID:          "web_navigate",
			Category:    "web",
			Name:        "Navigate Website",
			Keywords:    []string{"navigate", "website", "browse", "open", "visit", "go"},
			Description: "Navigate to a specific website",
			Steps: []StepSpec{
				{Order: 1, Action: ActionNavigate, Target: "{url}",
					Parameters: map[string]ValueKind{"url": KindURL}, Description: "Navigate to target website"},
				{Order: 2, Action: ActionWait, Value: "2s", Description: "Wait for page to settle"},
			},
		},
		{
			ID:          "page_screenshot",
			Category:    "web",
			Name:        "Capture Screenshot",
			Keywords:    []string{"screenshot", "capture", "snapshot", "picture"},
			Description: "Open a page and save a screenshot of it",
			Steps: []StepSpec{
				{Order: 1, Action: ActionNavigate, Target: "{url}",
					Parameters: map[string]ValueKind{"url": KindURL}, Description: "Navigate to page"},
				{Order: 2, Action: ActionScreenshot, Target: "page.png", Description: "Save screenshot"},
			},
		},
	}
}

func defaultSelectors() []ElementSelector {
	return []ElementSelector{
		{ElementID: "compose_button", Strategy: StrategyXPath, Value: `//div[@role="button" and contains(text(), "Compose")]`, Description: "Gmail compose button"},
		{ElementID: "recipient_field", Strategy: StrategyXPath, Value: `//input[@aria-label="To recipients"]`, Description: "Email recipient field"},
		{ElementID: "subject_field", Strategy: StrategyXPath, Value: `//input[@name="subjectbox"]`, Description: "Email subject field"},
		{ElementID: "message_body", Strategy: StrategyXPath, Value: `//div[@aria-label="Message Body"]`, Description: "Email message body"},
		{ElementID: "send_button", Strategy: StrategyXPath, Value: `//div[@role="button" and contains(text(), "Send")]`, Description: "Send email button"},
		{ElementID: "search_box", Strategy: StrategyCSS, Value: `textarea[name="q"]`, Description: "Google search box"},
	}
}
