// Package criteria evaluates dao.Parameter filters for in-memory stores.
package criteria

import (
	"github.com/viant/graphrun/service/dao"
)

// StatusParameter is the parameter name filtering by status.
const StatusParameter = "Status"

// FilterByStatus reports whether status satisfies the Status parameters, if any.
// Parameters with other names are ignored.
func FilterByStatus(status string, parameters []*dao.Parameter) bool {
	for _, parameter := range parameters {
		if parameter == nil || parameter.Name != StatusParameter {
			continue
		}
		switch actual := parameter.Value.(type) {
		case string:
			if status != actual {
				return false
			}
		case []string:
			matched := false
			for _, s := range actual {
				if status == s {
					matched = true
					break
				}
			}
			if !matched {
				return false
			}
		}
	}
	return true
}

// StatusValues returns the values of the Status parameters, or nil when absent.
func StatusValues(parameters []*dao.Parameter) []string {
	var ret []string
	for _, parameter := range parameters {
		if parameter == nil || parameter.Name != StatusParameter {
			continue
		}
		switch actual := parameter.Value.(type) {
		case string:
			ret = append(ret, actual)
		case []string:
			ret = append(ret, actual...)
		}
	}
	return ret
}
