package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// applyScoringProfile layers a YAML scoring profile over the env-derived lists.
// Keys absent from the file keep their env values.
//
//	my_city: Enna
//	nearby_cities: [Enna, Caltanissetta, Catania]
//	regional_locations: [Sicily, Italy]
//	bio_keywords: [data science, machine learning]
//	readme_keywords: [pandas, pytorch]
func applyScoringProfile(sc *ScoringConfig, path string) error {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("failed to load scoring profile %s: %w", path, err)
	}

	if k.Exists("my_city") {
		sc.MyCity = k.String("my_city")
	}
	overrideList(k, "nearby_cities", &sc.NearbyCities)
	overrideList(k, "regional_locations", &sc.RegionalLocations)
	overrideList(k, "bio_keywords", &sc.BioKeywords)
	overrideList(k, "readme_keywords", &sc.ReadmeKeywords)
	if k.Exists("search_language") {
		sc.SearchLanguage = k.String("search_language")
	}
	return nil
}

func overrideList(k *koanf.Koanf, key string, dst *[]string) {
	if k.Exists(key) {
		*dst = k.Strings(key)
	}
}

// compact trims entries and drops empty ones, so "a, ,b" yields [a b]
func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
