// ABOUTME: Query context builder folding an org selection and raw query into one prompt string
// ABOUTME: Pure and deterministic so identical inputs always produce byte-identical output

package orgs

import "fmt"

// BuildQueryContext folds an optional organization selector and the raw query
// text into a single structured prompt string for the agent runtime.
//
// The envelope distinguishes "organization known" from "no organization
// selected" and carries the query verbatim. A non-empty orgID that does not
// resolve in the directory is a caller error: ErrUnknownOrg is returned and
// no turn may be started.
func (d *Directory) BuildQueryContext(query, orgID string) (string, error) {
	if orgID == "" {
		return fmt.Sprintf("No specific organization selected\nUser Query: %s", query), nil
	}

	org, err := d.Lookup(orgID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Organization ID: %s (%s)\nUser Query: %s", org.ID, org.Name, query), nil
}
