package service

import "sort"

// mergeEnv merges process-global, service-local, and step-local setenv maps
// in that order, later wins. It returns the result as a sorted
// "KEY=VALUE" slice suitable for exec.Cmd.Env.
func mergeEnv(base []string, layers ...map[string]string) []string {
	merged := make(map[string]string)
	for _, kv := range base {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				merged[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	for _, layer := range layers {
		for k, v := range layer {
			merged[k] = v
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+merged[k])
	}
	return out
}
