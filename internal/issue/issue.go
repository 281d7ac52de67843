// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

type Id int

const (
	RecipeNotFoundId Id = iota + 1
	RecipeParseErrorId
	BaseResolutionFailedId
	EngineNotFoundId
	ProvisioningFailedId
	BindingConflictId
	IdentityConflictId
	ConfigLoadFailedId
	LockFileInvalidId
)

type MarkdownMsg string

type HttpLink string

type Renderer interface {
	Render(in string, stylePath string) (string, error)
}

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	docLinks []HttpLink  // documentation links shown under "See also"
	extLinks []HttpLink  // external links that might be useful for the user
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

func (i *Issue) Render(stylePath string) (string, error) {
	extraMd := ""
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		extraMd += "\n\n"
		extraMd += "## See also: "
		for _, link := range i.docLinks {
			extraMd += "- [" + string(link) + "]"
		}
		for _, link := range i.extLinks {
			extraMd += "- [" + string(link) + "]"
		}
	}
	return render(string(i.mdMsg)+extraMd, stylePath)
}

var (
	render = glamour.Render

	recipeNotFoundIssue = &Issue{
		id: RecipeNotFoundId,
		mdMsg: `
# No recipe found!

We searched for a recipe but couldn't find one in the expected locations.

## Search locations (in order of precedence):
1. The path passed with --recipe
2. recipe.cue in the current directory

## Things you can try:
- Create a starter recipe in your current directory:
~~~
$ strata init
~~~

- Or point at an existing one:
~~~
$ strata build --recipe /path/to/recipe.cue
~~~`,
	}

	recipeParseErrorIssue = &Issue{
		id: RecipeParseErrorId,
		mdMsg: `
# Failed to parse recipe!

Your recipe contains syntax errors or invalid configuration.

## Common issues:
- Invalid CUE syntax (missing quotes, braces, etc.)
- Unknown field names
- Missing required fields (name, base, step commands)
- A step user that no account declares
- An account group no earlier declaration provides

## Things you can try:
- Check the error message above for the specific field
- Validate without building:
~~~
$ strata validate
~~~

## Example of a valid recipe:
~~~cue
name: "my-env"
base: {runtime: "python", version: "3.9-slim"}

steps: [
  {
    name: "system-packages"
    commands: ["apt-get update", "apt-get install -y curl"]
  },
]
~~~`,
	}

	baseResolutionFailedIssue = &Issue{
		id: BaseResolutionFailedId,
		mdMsg: `
# Cannot pin the base image!

The base (runtime, version) pair could not be resolved to an immutable
digest.

## Common causes:
- The image or tag does not exist in the registry
- No network connectivity to pull the image
- A floating tag like "latest" (rejected: builds must be reproducible)

## Things you can try:
- Check the runtime and version fields of your recipe
- Pull the image manually to see the engine's error:
~~~
$ docker pull python:3.9-slim
~~~
- Pin a digest explicitly once you know it:
~~~cue
base: {
  runtime: "python"
  version: "3.9-slim"
  digest:  "sha256:..."
}
~~~`,
	}

	engineNotFoundIssue = &Issue{
		id: EngineNotFoundId,
		mdMsg: `
# No container engine found!

Building layers requires Docker or Podman, and neither is available.

## Things you can try:
- Install Docker: https://docs.docker.com/get-docker/
- Install Podman: https://podman.io/getting-started/installation
- Make sure the engine daemon is running:
~~~
$ docker info
~~~
- Exercise the build without an engine using the virtual executor:
~~~
$ strata build --executor virtual
~~~`,
	}

	provisioningFailedIssue = &Issue{
		id: ProvisioningFailedId,
		mdMsg: `
# A provisioning step failed!

A step's command group exited non-zero, so the build stopped. Steps are
all-or-nothing: no layer was recorded for the failed step and no later
step ran.

## Things you can try:
- Read the step output above for the failing command
- Layers before the failure are cached; fixing the step and rebuilding
  resumes from the failure point
- Re-run with verbose output:
~~~
$ strata build --verbose
~~~`,
	}

	bindingConflictIssue = &Issue{
		id: BindingConflictId,
		mdMsg: `
# Environment binding conflict!

Two declarations write the same key and strict bindings are enabled.

## Things you can try:
- Remove one of the conflicting declarations
- Scope the bindings apart ("build" vs "run")
- Drop strict mode to get last-write-wins semantics`,
	}

	identityConflictIssue = &Issue{
		id: IdentityConflictId,
		mdMsg: `
# Identity declaration conflict!

An account was declared twice, or a declaration references an account or
group that does not exist yet.

## The rules:
- Account names are unique within a recipe
- An account may only join groups an earlier declaration provides
  (another account's primary group, or a step's provides_groups)
- Escalation rules reference declared accounts

## Things you can try:
- Rename or remove the duplicate account
- Add provides_groups to the step that installs the group's package`,
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

Your strata configuration file exists but could not be loaded.

## Things you can try:
- Check the TOML syntax of your config file
- Show the effective configuration and its origin:
~~~
$ strata config show
~~~
- Move the file aside to fall back to defaults`,
	}

	lockFileInvalidIssue = &Issue{
		id: LockFileInvalidId,
		mdMsg: `
# Lock file is invalid!

The build manifest next to your recipe could not be read. Prune and
explain need it to know which layers belong to the last build.

## Things you can try:
- Rebuild to regenerate it:
~~~
$ strata build
~~~
- Delete the stale file if it comes from an old strata version`,
	}

	issues = map[Id]*Issue{
		recipeNotFoundIssue.Id():       recipeNotFoundIssue,
		recipeParseErrorIssue.Id():     recipeParseErrorIssue,
		baseResolutionFailedIssue.Id(): baseResolutionFailedIssue,
		engineNotFoundIssue.Id():       engineNotFoundIssue,
		provisioningFailedIssue.Id():   provisioningFailedIssue,
		bindingConflictIssue.Id():      bindingConflictIssue,
		identityConflictIssue.Id():     identityConflictIssue,
		configLoadFailedIssue.Id():     configLoadFailedIssue,
		lockFileInvalidIssue.Id():      lockFileInvalidIssue,
	}
)

func Values() []*Issue {
	return maps.Values(issues)
}

func Get(id Id) *Issue {
	return issues[id]
}
