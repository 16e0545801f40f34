package domain

// ExpectedToken builds the exact confirmation token destructive execution
// requires. Unscoped dimensions render as "*"; a fully unscoped run uses the
// --all form so an operator cannot wipe everything with an empty string.
func ExpectedToken(tenant, table string) string {
	if tenant == "" && table == "" {
		return "reconcile --all"
	}
	if tenant == "" {
		tenant = "*"
	}
	if table == "" {
		table = "*"
	}
	return "reconcile " + tenant + "/" + table
}
