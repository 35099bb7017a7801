package analyzer

import "testing"

func TestDetect_EmptyInput(t *testing.T) {
	if got := Detect(""); got != "" {
		t.Errorf("expected undetected for empty input, got %q", got)
	}
	if got := Detect("   \n\t  "); got != "" {
		t.Errorf("expected undetected for whitespace, got %q", got)
	}
}

func TestDetect_AmbiguousSingleToken(t *testing.T) {
	if got := Detect("hello world"); got != "" {
		t.Errorf("expected undetected for plain text, got %q", got)
	}
}

func TestDetect_JavaScript(t *testing.T) {
	code := "function hello() { console.log('world'); }"
	if got := Detect(code); got != "JavaScript" {
		t.Errorf("expected JavaScript, got %q", got)
	}
}

func TestDetect_Python(t *testing.T) {
	code := "import os\n\ndef main():\n    print('hi')\n\nif __name__ == '__main__':\n    main()\n"
	if got := Detect(code); got != "Python" {
		t.Errorf("expected Python, got %q", got)
	}
}

func TestDetect_SinglePrintBiasesPython(t *testing.T) {
	if got := Detect("print('hello')"); got != "Python" {
		t.Errorf("expected Python for bare print call, got %q", got)
	}
}

func TestDetect_Go(t *testing.T) {
	code := "package main\n\nimport \"fmt\"\n\nfunc main() {\n\tif err != nil {\n\t\tfmt.Println(err)\n\t}\n}\n"
	if got := Detect(code); got != "Go" {
		t.Errorf("expected Go, got %q", got)
	}
}

func TestDetect_Rust(t *testing.T) {
	code := "fn main() {\n    let mut x = 5;\n    println!(\"{}\", x);\n    match x {\n        _ => {}\n    }\n}\n"
	if got := Detect(code); got != "Rust" {
		t.Errorf("expected Rust, got %q", got)
	}
}

func TestDetect_Java(t *testing.T) {
	code := "public class Main {\n    public static void main(String[] args) {\n        System.out.println(\"hi\");\n    }\n}\n"
	if got := Detect(code); got != "Java" {
		t.Errorf("expected Java, got %q", got)
	}
}

func TestDetect_Cpp(t *testing.T) {
	code := "#include <iostream>\nusing namespace std;\nint main() {\n    cout << \"hi\" << endl;\n    return 0;\n}\n"
	if got := Detect(code); got != "C++" {
		t.Errorf("expected C++, got %q", got)
	}
}

func TestDetect_Ruby(t *testing.T) {
	code := "require 'json'\n\nclass Greeter\n  def greet(name)\n    puts name\n  end\nend\n\nitems.each do |item|\n  puts item\nend\n"
	if got := Detect(code); got != "Ruby" {
		t.Errorf("expected Ruby, got %q", got)
	}
}

func TestDetect_TypeScriptOnlyConstructsWin(t *testing.T) {
	code := "interface User {\n  name: string;\n  age: number;\n}\n\nfunction greet(user: User): string {\n  return user.name;\n}\n"
	if got := Detect(code); got != "TypeScript" {
		t.Errorf("expected TypeScript, got %q", got)
	}
}

func TestDetect_JavaScriptDominatedSampleStaysJavaScript(t *testing.T) {
	// Plain modern JavaScript with no TypeScript-only syntax.
	code := "const greet = (name) => {\n  console.log(`hello ${name}`);\n};\n\nexport default greet;\n"
	got := Detect(code)
	if got != "JavaScript" && got != "TypeScript" {
		t.Fatalf("expected a JavaScript-family detection, got %q", got)
	}
	if got == "TypeScript" {
		t.Errorf("TypeScript chosen without TypeScript-only constructs")
	}
}

func TestDetect_Kotlin(t *testing.T) {
	code := "fun main() {\n    val name = \"world\"\n    println(name)\n    when {\n        else -> {}\n    }\n}\n"
	got := Detect(code)
	if got != "Kotlin" {
		t.Errorf("expected Kotlin, got %q", got)
	}
}

func TestDetect_Swift(t *testing.T) {
	code := "import Foundation\n\nfunc greet(name: String) -> String {\n    guard let n = name as? String else { return \"\" }\n    return n\n}\n"
	got := Detect(code)
	if got != "Swift" {
		t.Errorf("expected Swift, got %q", got)
	}
}
