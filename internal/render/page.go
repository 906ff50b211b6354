package render

import (
	"bytes"
	"html/template"
)

// DefaultTitle is the document title of a fresh report page.
const DefaultTitle = "S3 Folder Sizes"

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>
        body {
            font-family: 'Arial', sans-serif;
            background-color: #f7fafc;
            color: #333;
            margin: 0;
            padding: 20px;
        }
        h1 {
            text-align: center;
            font-size: 2.5rem;
            color: #2c3e50;
            margin-bottom: 30px;
        }
        summary {
            cursor: pointer;
            font-size: 1.1rem;
            padding: 10px;
            background-color: #d6d9dc;
            color: #333;
            border-radius: 8px;
            transition: background-color 0.3s ease;
        }
        summary:hover {
            background-color: #e1e3e5;
        }
        details {
            margin-left: 20px;
            margin-top: 10px;
            box-shadow: 0px 2px 5px rgba(0, 0, 0, 0.1);
            padding: 10px;
            background-color: #ecf0f1;
            border-radius: 6px;
        }
        details[open] summary {
            background-color: #f2f3f5;
        }
    </style>
</head>
<body>
{{.Body}}</body>
</html>
`))

type pageData struct {
	Title string
	Body  template.HTML
}

// Page wraps an already rendered fragment in a full document whose body ends
// with the closing marker the report store appends before.
func Page(title, fragment string) (string, error) {
	if title == "" {
		title = DefaultTitle
	}
	var buf bytes.Buffer
	// fragment comes from Render, which escapes every node name
	if err := pageTemplate.Execute(&buf, pageData{Title: title, Body: template.HTML(fragment)}); err != nil {
		return "", err
	}
	return buf.String(), nil
}
