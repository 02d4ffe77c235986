/*
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

     https://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package control

import (
	_ "embed"
	"net/http"

	"github.com/go-openapi/loads"
	"github.com/go-openapi/runtime/middleware"
	"sigs.k8s.io/yaml"

	"github.com/oscdroid/go-oscbridge/pkg/log"
)

//go:embed swagger.yaml
var swaggerYAML []byte

// LoadSpec parses and analyzes the embedded API description
func LoadSpec() (*loads.Document, error) {
	raw, err := yaml.YAMLToJSON(swaggerYAML)
	if err != nil {
		return nil, err
	}
	return loads.Analyzed(raw, "")
}

// addDocRoutes serves the API description at /swagger.json and renders
// it at /docs
func (s *ApiServer) addDocRoutes() {
	doc, err := LoadSpec()
	if err != nil {
		log.Error("Error while loading API description: %s", err)
		return
	}
	raw := doc.Raw()
	s.Router.HandleFunc("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(raw)
	}).Methods("GET")
	s.Router.Handle("/docs", middleware.Redoc(middleware.RedocOpts{
		BasePath: "/",
		Path:     "docs",
		SpecURL:  "/swagger.json",
		Title:    "go-oscbridge API",
	}, http.NotFoundHandler())).Methods("GET")
}
