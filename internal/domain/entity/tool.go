package entity

type ToolName string

const (
	ToolGetAddressDetails      ToolName = "get_address_details"
	ToolGetAddressTransactions ToolName = "get_transactions_for_address"
	ToolGetTransactionDetails  ToolName = "get_single_transaction_details"
	ToolSearchCardanoKnowledge ToolName = "search_cardano_knowledge"
	ToolGetCardanoFAQ          ToolName = "get_cardano_faq"
	ToolSearchCivilLaw         ToolName = "search_civil_law_knowledge"
	ToolSearchCorporateLaw     ToolName = "search_corporate_law_knowledge"
	ToolSearchPropertyLaw      ToolName = "search_property_law_knowledge"
)

func (t ToolName) String() string {
	return string(t)
}

// ToolResult is the outcome of one tool dispatch. A failed result is still
// a valid observation for the model.
type ToolResult struct {
	OK    bool
	Value string
	Error string
}

func ToolValue(v string) ToolResult {
	return ToolResult{OK: true, Value: v}
}

func ToolError(msg string) ToolResult {
	return ToolResult{OK: false, Error: msg}
}

// Content renders the result as the text of a tool-result turn.
func (r ToolResult) Content() string {
	if r.OK {
		return r.Value
	}
	return "Error: " + r.Error
}
